package types

// PubSubMessage is the payload of a Pub/Sub event via Cloud Event.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes,omitempty"`
		MessageID  string            `json:"messageId,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription,omitempty"`
}

// PipelineMessage is the decoded body of a pipeline trigger message.
// Private runs carry BlobPath, public runs carry the uploaded file inline.
type PipelineMessage struct {
	UploadID         string `json:"upload_id"`
	BlobPath         string `json:"blob_path,omitempty"`
	DropboxPath      string `json:"dropbox_path,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	UserEmail        string `json:"user_email,omitempty"`
	FileData         string `json:"file_data,omitempty"` // base64
	Locale           string `json:"locale,omitempty"`
}

// RepairResultEvent is published when a public repair run finishes.
// The mailer subscribes to it; DownloadURL is empty when nothing was fixed.
type RepairResultEvent struct {
	UploadID         string `json:"upload_id"`
	UserEmail        string `json:"user_email"`
	OriginalFilename string `json:"original_filename"`
	Locale           string `json:"locale"`
	Result           string `json:"result"` // "find" or "not_found"
	BadLines         int    `json:"bad_lines"`
	DownloadURL      string `json:"download_url,omitempty"`
}
