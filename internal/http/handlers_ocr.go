package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/shopspring/decimal"

	"finlight/internal/auth"
	"finlight/internal/core"
	"finlight/internal/ocr"
	"finlight/internal/services"
)

// Multipart overhead allowed on top of the image itself.
const multipartSlack = 1 << 20

// Form field names accepted for the receipt image, in lookup order.
var receiptFields = []string{"image", "file"}

type receiptItemDTO struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Total       string `json:"total"`
}

type receiptResultDTO struct {
	Vendor     string           `json:"vendor"`
	Amount     string           `json:"amount"`
	Date       string           `json:"date,omitempty"`
	VATAmount  string           `json:"vatAmount"`
	Items      []receiptItemDTO `json:"items"`
	RawText    string           `json:"rawText"`
	Confidence decimal.Decimal  `json:"confidence"`
}

func newReceiptResultDTO(res ocr.ReceiptProcessingResult) receiptResultDTO {
	out := receiptResultDTO{
		Vendor:     res.Vendor,
		Amount:     res.Amount.String(),
		Date:       res.Date.String(),
		VATAmount:  res.VATAmount.String(),
		Items:      make([]receiptItemDTO, 0, len(res.Items)),
		RawText:    res.RawText,
		Confidence: res.Confidence,
	}
	for _, it := range res.Items {
		out.Items = append(out.Items, receiptItemDTO{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.String(),
			Total:       it.Total.String(),
		})
	}
	return out
}

// handleReceiptUpload serves POST /ocr/receipt. The image arrives as a
// multipart part named "image" or "file" next to a businessId field.
func (s *Server) handleReceiptUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no principal", core.ErrUnauthenticated))
		return
	}
	if !s.receipts.Enabled() {
		writeError(w, r, fmt.Errorf("%w: receipt OCR is disabled", core.ErrDependencyUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxReceiptBytes+multipartSlack)
	if err := r.ParseMultipartForm(services.MaxReceiptBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", core.ErrInvalidArgument, services.MaxReceiptBytes))
			return
		}
		writeError(w, r, fmt.Errorf("%w: expected a multipart form: %v", core.ErrInvalidArgument, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	businessID, err := services.ParseBusinessID(r.FormValue("businessId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	image, err := readReceiptImage(r.MultipartForm)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.receipts.ProcessReceipt(r.Context(), principal.UserID, businessID, image)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, "Receipt processed successfully", newReceiptResultDTO(result))
}

func readReceiptImage(form *multipart.Form) ([]byte, error) {
	for _, name := range receiptFields {
		headers := form.File[name]
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open upload: %v", core.ErrInvalidArgument, err)
		}
		defer f.Close()

		// One byte past the limit lets the service reject oversized images.
		data, err := io.ReadAll(io.LimitReader(f, services.MaxReceiptBytes+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read upload: %v", core.ErrInvalidArgument, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: a receipt image is required in the %q or %q field", core.ErrInvalidArgument, receiptFields[0], receiptFields[1])
}
