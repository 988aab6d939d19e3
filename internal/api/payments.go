package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"topup-api/internal/response"
	"topup-api/internal/services"
	"topup-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const maxReceiptSize = 10 << 20

// SubmitPayment accepts a payment submission in any supported encoding
func (h *Handler) SubmitPayment(c *gin.Context) {
	sub, err := decodeSubmission(c)
	if err != nil {
		logging.Warnf("Rejected payment submission: %v", err)
		response.ErrorJSON(c, statusFor(err), publicMessage(err))
		return
	}

	result, err := h.Intake.Submit(c.Request.Context(), sub)
	if err != nil {
		logging.Errorf("Payment submission failed: %v", err)
		response.ErrorJSON(c, statusFor(err), publicMessage(err))
		return
	}

	response.SuccessJSON(c, "Pago registrado, será verificado en breve", gin.H{
		"transaction_id": result.TxID,
	})
}

// decodeSubmission reads the body by its Content-Type into one Submission
func decodeSubmission(c *gin.Context) (*services.Submission, error) {
	var sub services.Submission

	switch c.ContentType() {
	case binding.MIMEMultipartPOSTForm:
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxReceiptSize+1<<20)
		if err := c.ShouldBindWith(&sub, binding.FormMultipart); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrMalformedRequest, err)
		}
		receipt, err := spoolReceipt(c)
		if err != nil {
			return nil, err
		}
		sub.Receipt = receipt
		sub.Encoding = services.EncodingMultipart
	case binding.MIMEJSON:
		if err := c.ShouldBindJSON(&sub); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrMalformedRequest, err)
		}
		sub.Encoding = services.EncodingJSON
	case binding.MIMEPOSTForm:
		if err := c.ShouldBindWith(&sub, binding.Form); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrMalformedRequest, err)
		}
		sub.Encoding = services.EncodingURLEncoded
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", services.ErrMalformedRequest, c.ContentType())
	}

	return &sub, nil
}

// spoolReceipt copies the optional "receipt" file to a temp file
func spoolReceipt(c *gin.Context) (*services.ReceiptFile, error) {
	header, err := c.FormFile("receipt")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: receipt: %v", services.ErrMalformedRequest, err)
	}
	if header.Size > maxReceiptSize {
		return nil, fmt.Errorf("%w: receipt larger than %d bytes", services.ErrMalformedRequest, maxReceiptSize)
	}

	tmp, err := os.CreateTemp("", "receipt-*"+filepath.Ext(header.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp receipt: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := c.SaveUploadedFile(header, path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	return &services.ReceiptFile{
		Path:        path,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
