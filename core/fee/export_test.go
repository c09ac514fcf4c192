package fee

import "io"

// SetReceiptAttachment replaces the receipt attachment content until the returned func is called.
func SetReceiptAttachment(fn func(rct Receipt) io.Reader) (restore func()) {
	orig := receiptAttachment
	receiptAttachment = fn
	return func() { receiptAttachment = orig }
}
