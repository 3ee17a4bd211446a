package contract

import "context"

// TextGenerator turns a prompt into free text. Output may claim to be JSON
// without being JSON; callers locate and validate it themselves.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Messenger delivers text to a contact on the messaging channel.
type Messenger interface {
	Send(ctx context.Context, contactID string, text string) error
}
