package emailsvc

import (
	"bytes"
	"net/http"
	"net/mail"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/awe-academy/core"
)

type stubSendgrid struct {
	responses []*rest.Response
	errs      []error
	sent      []*sgmail.SGMailV3
}

func (c *stubSendgrid) Send(m *sgmail.SGMailV3) (*rest.Response, error) {
	i := len(c.sent)
	c.sent = append(c.sent, m)
	var res *rest.Response
	if i < len(c.responses) {
		res = c.responses[i]
	}
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if res == nil {
		res = &rest.Response{StatusCode: http.StatusAccepted}
	}
	return res, nil
}

type errorLogger struct {
	core.Logger
	mu   sync.Mutex
	msgs []string
}

func (l *errorLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func newTestSendgrid(t *testing.T, client sendgridClient) (*sendgridService, *errorLogger) {
	t.Helper()
	restore := sendgridRetryDelay
	sendgridRetryDelay = 0
	t.Cleanup(func() { sendgridRetryDelay = restore })

	conf := core.NewTestConfig()
	logger := &errorLogger{}
	svc := NewSendgridService(conf, logger).(*sendgridService)
	svc.client = client
	return svc, logger
}

func receiptMessage(t *testing.T) *core.EmailMessage {
	t.Helper()
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Amani Kabila", Address: "amani@awe.test"}},
		Bcc:          []mail.Address{{Address: "finance@awe.test"}},
		Subject:      "Payment receipt RCT-2024-000001",
		TemplateName: "payment_receipt",
	}
	require.NoError(t, msg.Attach(bytes.NewBufferString("Receipt RCT-2024-000001"), "RCT-2024-000001.txt", "text/plain"))
	return msg
}

func Test_sendgridService_prepare(t *testing.T) {
	svc, _ := newTestSendgrid(t, &stubSendgrid{})
	msg := receiptMessage(t)

	m := svc.prepare(*msg)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Awe Academy] Payment receipt RCT-2024-000001", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "amani@awe.test", p.To[0].Address)
	assert.Empty(t, p.CC)
	require.Len(t, p.BCC, 1)
	assert.Equal(t, "finance@awe.test", p.BCC[0].Address)

	// no template loaded: the subject stands in for the body, html is omitted
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, msg.Subject, m.Content[0].Value)
	assert.Equal(t, []string{"payment_receipt"}, m.Categories)

	require.Len(t, m.Attachments, 1)
	at := m.Attachments[0]
	assert.Equal(t, "RCT-2024-000001.txt", at.Filename)
	assert.Equal(t, "text/plain", at.Type)
	assert.Equal(t, "attachment", at.Disposition)
	assert.Equal(t, msg.Attachments[0].Content.String(), at.Content)

	msg.TextContent, msg.HTMLContent = "Paid", "<p>Paid</p>"
	m = svc.prepare(*msg)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}

func Test_sendgridService_deliver(t *testing.T) {
	tests := []struct {
		name      string
		client    *stubSendgrid
		wantCalls int
		wantLogs  int
	}{
		{"accepted", &stubSendgrid{}, 1, 0},
		{
			"retried until accepted",
			&stubSendgrid{responses: []*rest.Response{{StatusCode: http.StatusServiceUnavailable}, {StatusCode: http.StatusTooManyRequests}}},
			3, 0,
		},
		{"network errors exhaust attempts", &stubSendgrid{errs: []error{errors.New("eof"), errors.New("eof"), errors.New("eof")}}, 3, 1},
		{"rejected is not retried", &stubSendgrid{responses: []*rest.Response{{StatusCode: http.StatusBadRequest, Body: "bad from"}}}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, logger := newTestSendgrid(t, tt.client)
			svc.deliver(receiptMessage(t))
			assert.Len(t, tt.client.sent, tt.wantCalls)
			assert.Len(t, logger.msgs, tt.wantLogs)
		})
	}
}

func Test_sendgridService_deliver_skipsEmpty(t *testing.T) {
	client := &stubSendgrid{}
	svc, logger := newTestSendgrid(t, client)

	svc.deliver(&core.EmailMessage{Subject: "nobody", BodyStr: "hello"})
	svc.deliver(&core.EmailMessage{To: []mail.Address{{Address: "amani@awe.test"}}, Subject: "blank"})
	assert.Empty(t, client.sent)
	assert.Empty(t, logger.msgs)
}
