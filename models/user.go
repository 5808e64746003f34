package models

// Author represents the public profile attached to a chat message
type Author struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Level       int    `json:"level"`
	LevelBadge  string `json:"levelBadge"`
	Avatar      string `json:"avatar"`
}

// Name returns the label shown next to a message
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}
