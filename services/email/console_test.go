package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/assets"
	"github.com/trezcool/studentnotes/core"
	logsvc "github.com/trezcool/studentnotes/services/logger"
)

func TestConsoleService(t *testing.T) {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, conf, logger)
	svc := NewConsoleServiceMock(conf, logger)

	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		Subject: "Report",
		BodyStr: "see attached",
	}
	require.NoError(t, withAttachment.Attach(bytes.NewBufferString("a,b\n1,2\n"), "report.csv", "text/csv"))

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
			Subject:      "Deletion request rejected",
			TemplateName: "deletion_decision",
			TemplateData: map[string]interface{}{
				"Name":      "Ada",
				"NoteTitle": "OSI Model",
				"Decision":  "rejected",
				"Reason":    "still in use",
			},
		},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped: no recipients"},
		withAttachment,
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, `Your request to delete "OSI Model" was rejected.`)
	assert.Contains(t, sent[0].TextContent, "Reason: still in use")
	assert.Contains(t, sent[0].HTMLContent, "OSI Model")
	assert.Equal(t, "see attached", sent[1].TextContent)

	out, err := svc.format(sent[1])
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: [Student Notes] Report")
	assert.Contains(t, out, "filename=report.csv")
}

func TestNewService(t *testing.T) {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()

	assert.IsType(t, &ConsoleService{}, NewService(conf, logger))

	conf.TestMode = false
	conf.SendgridApiKey = "key"
	assert.IsType(t, &SendgridService{}, NewService(conf, logger))
}
