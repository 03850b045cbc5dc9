package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/teemow/calendar-mcp/internal/session"
)

// maxUserInfoBytes caps the profile document read from the provider.
const maxUserInfoBytes = 1 << 20

// fetchUserInfo GETs the userinfo endpoint with accessToken as a bearer
// credential and returns the decoded JSON object unchanged.
func (c *Controller) fetchUserInfo(ctx context.Context, accessToken string) (session.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxUserInfoBytes))
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info session.UserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("userinfo endpoint returned an empty document")
	}
	return info, nil
}
