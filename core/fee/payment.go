package fee

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/awe-academy/core"
	"github.com/trezcool/awe-academy/core/audit"
)

const receiptDateLayout = "20060102"

// receiptAttachment is the content of the file attached to receipt emails.
var receiptAttachment = func(rct Receipt) io.Reader { return bytes.NewBufferString(rct.Text()) } // mockable

// ReceiptNumber formats the receipt number of payment `id`.
// Payment ids are unique so receipt numbers are too; the date part is informative only.
func ReceiptNumber(prefix string, at time.Time, id int) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, at.UTC().Format(receiptDateLayout), id)
}

// ApplyPayment records a payment against a StudentFee and moves its balance and status forward.
// The StudentFee row stays locked from the balance check until commit, so concurrent payments
// against the same assessment are applied one after the other.
func (svc *Service) ApplyPayment(ctx context.Context, actor core.Actor, np NewPayment) (RecordedPayment, error) {
	if err := np.Validate(svc.validate); err != nil {
		svc.metrics.OperationRejected("apply_payment", "validation")
		return RecordedPayment{}, err
	}

	var rp RecordedPayment
	err := svc.repo.Atomic(ctx, func(repo Repository) error {
		sf, err := repo.GetStudentFeeForUpdate(ctx, np.StudentFeeID)
		if err != nil {
			return err
		}

		remaining := sf.Remaining()
		if np.Amount.GreaterThan(remaining) {
			return &core.OverpaymentError{Amount: np.Amount, Remaining: remaining}
		}

		id, err := repo.NextPaymentID(ctx)
		if err != nil {
			return errors.Wrap(err, "reserving payment id")
		}
		now := NowFunc().UTC()
		p, err := repo.CreatePayment(ctx, Payment{
			ID:            id,
			StudentFeeID:  sf.ID,
			Amount:        np.Amount,
			PaymentDate:   core.TruncateDay(np.PaymentDate),
			PaymentMethod: np.PaymentMethod,
			ReceiptNumber: ReceiptNumber(svc.conf.Ledger.ReceiptPrefix, now, id),
			Notes:         np.Notes,
			CreatedBy:     actor.UserID,
			CreatedAt:     now,
		})
		if err != nil {
			return errors.Wrap(err, "inserting payment")
		}

		sf.AmountPaid = sf.AmountPaid.Add(p.Amount)
		sf.PaymentStatus = DeriveStatus(sf.AmountPaid, sf.FeeAmount)
		sf.UpdatedAt = now
		if err = repo.SetStudentFeeBalance(ctx, sf.ID, sf.AmountPaid, sf.PaymentStatus, now); err != nil {
			return errors.Wrap(err, "updating student fee balance")
		}

		_, err = repo.CreateAuditEntry(ctx, audit.NewEntry(actor, audit.ActionPaymentRecorded,
			fmt.Sprintf("Recorded payment of $%s for student %s", p.Amount.StringFixed(2), sf.StudentNumber)))
		if err != nil {
			return errors.Wrap(err, "writing audit entry")
		}

		rp = RecordedPayment{Payment: p, StudentFee: sf}
		return nil
	})
	if err != nil {
		switch errors.Cause(err).(type) {
		case *core.OverpaymentError:
			svc.metrics.OperationRejected("apply_payment", "overpayment")
		case *core.NotFoundError:
			svc.metrics.OperationRejected("apply_payment", "not_found")
		}
		return RecordedPayment{}, core.StoreError("applying payment", err)
	}

	svc.metrics.PaymentRecorded(rp.Payment.PaymentMethod, rp.Payment.Amount)
	svc.sendReceipt(rp)
	return rp, nil
}

// sendReceipt emails the receipt to the student, when an email address is on file.
func (svc *Service) sendReceipt(rp RecordedPayment) {
	if svc.mailSvc == nil || rp.StudentFee.StudentEmail == "" {
		return
	}

	rct := Receipt{
		Payment:       rp.Payment,
		StudentNumber: rp.StudentFee.StudentNumber,
		StudentName:   rp.StudentFee.StudentName,
		FeeName:       rp.StudentFee.FeeName,
		FeeAmount:     rp.StudentFee.FeeAmount,
		AmountPaid:    rp.StudentFee.AmountPaid,
		Balance:       rp.StudentFee.Remaining(),
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: rct.StudentName, Address: rp.StudentFee.StudentEmail}},
		Subject:      "Payment receipt " + rct.ReceiptNumber,
		TemplateName: "payment_receipt",
		TemplateData: receiptTemplateData(rct),
	}
	if err := msg.Attach(receiptAttachment(rct), rct.ReceiptNumber+".txt", "text/plain"); err != nil {
		err = errors.Wrap(err, "attaching receipt")
		svc.logger.Error(fmt.Sprintf("sending receipt %s: %v", rct.ReceiptNumber, err), err)
		return
	}
	svc.mailSvc.SendMessages(msg)
}

type receiptData struct {
	StudentName   string
	FeeName       string
	Amount        string
	ReceiptNumber string
	PaymentDate   string
	PaymentMethod string
	AmountPaid    string
	FeeAmount     string
	Balance       string
}

func receiptTemplateData(rct Receipt) receiptData {
	return receiptData{
		StudentName:   rct.StudentName,
		FeeName:       rct.FeeName,
		Amount:        rct.Amount.StringFixed(2),
		ReceiptNumber: rct.ReceiptNumber,
		PaymentDate:   rct.PaymentDate.Format("2006-01-02"),
		PaymentMethod: rct.PaymentMethod,
		AmountPaid:    rct.AmountPaid.StringFixed(2),
		FeeAmount:     rct.FeeAmount.StringFixed(2),
		Balance:       rct.Balance.StringFixed(2),
	}
}

// Text renders a plain text copy of the receipt.
func (rct Receipt) Text() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "RECEIPT %s\n\n", rct.ReceiptNumber)
	fmt.Fprintf(&buf, "Student:        %s (%s)\n", rct.StudentName, rct.StudentNumber)
	if rct.ClassYear != "" {
		fmt.Fprintf(&buf, "Class:          %s\n", rct.ClassYear)
	}
	fmt.Fprintf(&buf, "Fee:            %s\n", rct.FeeName)
	if rct.AcademicYear != "" {
		fmt.Fprintf(&buf, "Academic year:  %s\n", rct.AcademicYear)
	}
	fmt.Fprintf(&buf, "Payment date:   %s\n", rct.PaymentDate.Format("2006-01-02"))
	fmt.Fprintf(&buf, "Payment method: %s\n", rct.PaymentMethod)
	fmt.Fprintf(&buf, "Amount:         %s\n", rct.Amount.StringFixed(2))
	fmt.Fprintf(&buf, "Total paid:     %s of %s\n", rct.AmountPaid.StringFixed(2), rct.FeeAmount.StringFixed(2))
	fmt.Fprintf(&buf, "Balance:        %s\n", rct.Balance.StringFixed(2))
	if rct.RecordedBy != "" {
		fmt.Fprintf(&buf, "Recorded by:    %s\n", rct.RecordedBy)
	}
	return buf.String()
}
