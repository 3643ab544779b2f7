// Package connectors pulls report emails from mail providers and stores the
// raw messages for processing.
package connectors

import "sheetmap/internal"

// MailConnector fetches unread messages from one mailbox or label.
type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}
