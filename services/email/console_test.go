package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
	appfs "github.com/trezcool/colegio/fs"
	"github.com/trezcool/colegio/tests"
)

type assignedData struct {
	AssigneeName string
	Title        string
	Priority     string
	DueDate      string
}

func newMock() *ConsoleServiceMock {
	conf := &core.Config{AppName: "Colegio", FrontendBaseURL: "http://front.test"}
	renderer := core.NewTemplateRenderer(appfs.EmailTemplates(), conf.FrontendBaseURL, true)
	return NewConsoleServiceMock(conf, renderer, new(testutil.Logger))
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := newMock()

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ana", Address: "ana@test.co"}},
			Subject:      "Nueva tarea",
			TemplateName: "task_assigned",
			TemplateData: assignedData{AssigneeName: "Ana", Title: "Plan de mejora", Priority: "ALTA", DueDate: "2026-11-01"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@test.co"}}, Subject: "plain", BodyStr: "hello bob"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)

	assigned := sent[0]
	assert.Contains(t, assigned.TextContent, "Hola Ana,")
	assert.Contains(t, assigned.TextContent, `"Plan de mejora" (prioridad ALTA)`)
	assert.Contains(t, assigned.TextContent, "Fecha límite: 2026-11-01")
	assert.Contains(t, assigned.TextContent, "http://front.test/tareas-gestion")
	assert.True(t, strings.HasPrefix(assigned.HTMLContent, "<!DOCTYPE html>"))
	assert.Contains(t, assigned.HTMLContent, "<strong>Plan de mejora</strong>")

	assert.Equal(t, "hello bob", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)
}

func TestConsoleServiceMock_unknownTemplate(t *testing.T) {
	svc := newMock()
	logger := svc.logger.(*testutil.Logger)

	svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: "ana@test.co"}},
		TemplateName: "nope",
	})

	assert.Empty(t, svc.Sent())
	assert.EqualValues(t, 1, logger.Errors)
}
