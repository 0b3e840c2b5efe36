package model

type NotificationType string

const (
	NotificationTypeBlock NotificationType = "block"
)

// Notification tells the scanner that the node's chain may have moved.
type Notification struct {
	Type NotificationType
	Hash string
}
