package adapter

import chat "pulsechat/internal/pkg/chat/application/domain"

func mediaColumns(m *chat.MediaAttributes) (url, mimeType, fileName *string, fileSize *int64) {
	if m == nil {
		return nil, nil, nil, nil
	}
	return &m.URL, &m.MimeType, &m.FileName, &m.FileSize
}

func mediaFromColumns(url, mimeType, fileName *string, fileSize *int64) *chat.MediaAttributes {
	if url == nil || *url == "" {
		return nil
	}
	m := &chat.MediaAttributes{URL: *url}
	if mimeType != nil {
		m.MimeType = *mimeType
	}
	if fileName != nil {
		m.FileName = *fileName
	}
	if fileSize != nil {
		m.FileSize = *fileSize
	}
	return m
}
