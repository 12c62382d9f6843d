package cli

import (
	"context"

	"github.com/dmitrijs2005/biru/internal/common"
)

// Post publishes a post from the current account.
func (a *App) Post(ctx context.Context) error {
	text, err := getMultiline(a.reader, "Post text", a.out)
	if err != nil {
		return err
	}
	if text == "" {
		return common.NewValidationError("text", "required")
	}

	date, err := getSimpleText(a.reader, "Date (YYYY-MM-DD, empty for now)", a.out)
	if err != nil {
		return err
	}

	uri, err := a.posts.CreatePost(ctx, text, date)
	if err != nil {
		return err
	}
	a.println("Posted:", uri)
	return nil
}
