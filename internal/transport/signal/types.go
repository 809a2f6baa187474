package signal

// receiveItem is one element of the /v1/receive response.
type receiveItem struct {
	Envelope envelope `json:"envelope"`
	Account  string   `json:"account"`
}

type envelope struct {
	Source       string       `json:"source"`
	SourceNumber string       `json:"sourceNumber"`
	SourceUUID   string       `json:"sourceUuid"`
	Timestamp    int64        `json:"timestamp"`
	DataMessage  *dataMessage `json:"dataMessage,omitempty"`
	SyncMessage  *syncMessage `json:"syncMessage,omitempty"`
}

type dataMessage struct {
	Message   string     `json:"message"`
	GroupInfo *groupInfo `json:"groupInfo,omitempty"`
}

type groupInfo struct {
	GroupID string `json:"groupId"`
}

// syncMessage carries messages the account owner sent from another device.
type syncMessage struct {
	SentMessage *sentMessage `json:"sentMessage,omitempty"`
}

type sentMessage struct {
	Message     string     `json:"message"`
	Destination string     `json:"destination"`
	GroupInfo   *groupInfo `json:"groupInfo,omitempty"`
}

// sendRequest is the /v2/send request body.
type sendRequest struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}
