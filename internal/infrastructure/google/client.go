// Package google adapts Google Calendar and Google Sheets to the calendar and
// spreadsheet ports.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fastygo/taskbot/domain"
)

// Credentials resolves service-account credentials from inline JSON or, when
// that is empty, from a key file, and returns them as a client option.
func Credentials(ctx context.Context, inlineJSON, file string, scopes ...string) (option.ClientOption, error) {
	raw := []byte(inlineJSON)
	if len(raw) == 0 && file != "" {
		var err error
		if raw, err = os.ReadFile(file); err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, domain.ErrCollaboratorDisabled
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}

// mapError turns "gone" API responses into domain.ErrExternalNotFound.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return domain.ErrExternalNotFound.Wrap(err)
	}
	return err
}
