package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/datascanner/internal/connectors/data"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/services"
)

const message = "From: Alice <alice@example.org>\r\n" +
	"To: bob@example.org\r\n" +
	"Subject: =?utf-8?q?Hej_med_dig?=\r\n" +
	"Received: from a\r\n" +
	"Received: from b\r\n" +
	"\r\n" +
	"Body text\r\n"

func TestConvert(t *testing.T) {
	src := data.New([]byte(message), domain.MIMEMessage, "mail.eml")
	res := data.NewHandle(src, "mail.eml").Follow(services.NewStateManager(3, nil))

	c := New()
	assert.Equal(t, domain.OutputEmailHeaders, c.OutputType())
	assert.Equal(t, []string{domain.MIMEMessage}, c.SupportedMIMETypes())

	v, err := c.Convert(context.Background(), res)
	require.NoError(t, err)
	headers, ok := v.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Alice <alice@example.org>", headers["from"])
	assert.Equal(t, "bob@example.org", headers["to"])
	assert.Equal(t, "Hej med dig", headers["subject"])
	assert.Equal(t, "from a, from b", headers["received"])
	assert.NotContains(t, headers, "From")
}

func TestConvert_NotAMessage(t *testing.T) {
	src := data.New([]byte("no headers here"), domain.MIMEMessage, "mail.eml")
	res := data.NewHandle(src, "mail.eml").Follow(services.NewStateManager(3, nil))

	_, err := New().Convert(context.Background(), res)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
