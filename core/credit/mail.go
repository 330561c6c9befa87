package credit

import (
	"net/mail"

	"github.com/trezcool/masomo-credits/core"
)

type receiptMailData struct {
	PackageName string
	Transaction Transaction
	Balance     Balance
}

func (svc *service) sendReceiptMail(to string, pkg Package, rcpt Receipt) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: to}},
		Subject:      "Your credit purchase receipt",
		TemplateName: "purchase_receipt",
		TemplateData: receiptMailData{
			PackageName: pkg.Name,
			Transaction: rcpt.Transaction,
			Balance:     rcpt.Balance,
		},
	})
}
