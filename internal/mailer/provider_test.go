package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIProvider_Send(t *testing.T) {
	p := NewAPIProvider("https://api.resend.test/", "secret-key", 5*time.Second)
	client := p.(*apiProvider).client
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	var got apiSendRequest
	var auth string
	httpmock.RegisterResponder(http.MethodPost, "https://api.resend.test/emails",
		func(req *http.Request) (*http.Response, error) {
			auth = req.Header.Get("Authorization")
			if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"id": "em_1"})
		})

	err := p.Send(context.Background(), "VulnWatch <alerts@vulnwatch.local>", testMessage())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", auth)
	assert.Equal(t, "VulnWatch <alerts@vulnwatch.local>", got.From)
	assert.Equal(t, "sec@example.com", got.To)
	assert.Equal(t, "<p>hi</p>", got.HTML)
	assert.Equal(t, "hi", got.Text)
}

func TestAPIProvider_SendErrorStatus(t *testing.T) {
	p := NewAPIProvider("https://api.resend.test", "secret-key", 5*time.Second)
	httpmock.ActivateNonDefault(p.(*apiProvider).client)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, "https://api.resend.test/emails",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"error":"invalid to"}`))

	err := p.Send(context.Background(), "alerts@vulnwatch.local", testMessage())
	require.Error(t, err)
	assert.ErrorContains(t, err, "422")
	assert.ErrorContains(t, err, "invalid to")
}

func TestBuildMIME(t *testing.T) {
	body := string(buildMIME("VulnWatch <alerts@vulnwatch.local>", testMessage()))

	assert.Contains(t, body, "From: VulnWatch <alerts@vulnwatch.local>\r\n")
	assert.Contains(t, body, "Subject: test\r\n")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "Content-Type: text/plain; charset=UTF-8\r\n\r\nhi\r\n")
	assert.Contains(t, body, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>\r\n")
	assert.Contains(t, body, "--"+mimeBoundary+"--\r\n", "closing boundary present")
}
