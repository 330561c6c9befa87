package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/masomo-credits/core"
)

type consoleService struct {
	std              *log.Logger
	logger           core.Logger
	ctxData          core.ContextData
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService returns an EmailService printing messages to `std` (for local development).
func NewConsoleService(std *log.Logger, logger core.Logger, conf *core.Config) core.EmailService {
	return newConsoleService(std, logger, conf)
}

func newConsoleService(std *log.Logger, logger core.Logger, conf *core.Config) *consoleService {
	return &consoleService{
		std:              std,
		logger:           logger,
		ctxData:          core.ContextData{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL},
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
	}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

// sendMessage renders then prints msg; it reports whether msg was sent.
func (svc *consoleService) sendMessage(msg *core.EmailMessage) bool {
	if err := msg.Render(svc.ctxData); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return false
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return false
	}
	svc.send(*msg)
	return true
}

func (svc *consoleService) send(msg core.EmailMessage) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", svc.joinAddresses(msg.To))
	_, _ = fmt.Fprintf(body, "CC: %s\r\n", svc.joinAddresses(msg.Cc))
	_, _ = fmt.Fprintf(body, "BCC: %s\r\n", svc.joinAddresses(msg.Bcc))

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n", altW.Boundary())
	_, _ = fmt.Fprint(body, "\r\n")

	if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}}); err == nil {
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)
	}
	if msg.HTMLContent != "" {
		if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}}); err == nil {
			_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
		}
	}
	_ = altW.Close()

	if !svc.disableOutput {
		svc.std.Println(body.String())
	}
}

func (svc *consoleService) joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock sends synchronously, prints nothing and keeps the sent messages.
type ConsoleServiceMock struct {
	*consoleService

	mu   sync.Mutex
	sent []core.EmailMessage
}

func NewConsoleServiceMock(logger core.Logger, conf *core.Config) *ConsoleServiceMock {
	svc := newConsoleService(log.Default(), logger, conf)
	svc.disableOutput = true
	return &ConsoleServiceMock{consoleService: svc}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		if svc.sendMessage(msg) {
			svc.mu.Lock()
			svc.sent = append(svc.sent, *msg)
			svc.mu.Unlock()
		}
	}
}

// SentMessages returns a copy of the messages sent so far.
func (svc *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	sent := make([]core.EmailMessage, len(svc.sent))
	copy(sent, svc.sent)
	return sent
}
