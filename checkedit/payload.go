package checkedit

import (
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/zamonsoft/checkedit_backend/models"
	"github.com/shopspring/decimal"
)

// SubmitPayload mirrors the portal's set-payment request body exactly.
// The portal is picky: cardTotal, vat, and vatPercent must be quoted
// strings while vatTotal and cashTotal are bare numbers.
type SubmitPayload struct {
	PaymentId      string          `json:"paymentId"`
	VatTotal       float64         `json:"vatTotal"`
	CashTotal      float64         `json:"cashTotal"`
	CardTotal      decimal.Decimal `json:"cardTotal"`
	AttachedFile   string          `json:"attachedFile"`
	CaptchaId      json.RawMessage `json:"captchaId"`
	CaptchaValue   string          `json:"captchaValue"`
	CardType       string          `json:"cardType"`
	NameStatus     bool            `json:"nameStatus"`
	ClientIp       string          `json:"clientIp"`
	PaymentDetails []PaymentDetail `json:"paymentDetails"`
	Tin            string          `json:"tin"`
	TerminalId     string          `json:"terminalId"`
	PaymentDate    *string         `json:"paymentDate"`
}

type PaymentDetail struct {
	Id              string          `json:"id"`
	PaymentId       string          `json:"paymentId"`
	Tin             string          `json:"tin"`
	Pinfl           *string         `json:"pinfl"`
	Name            string          `json:"name"`
	Price           float64         `json:"price"`
	Vat             decimal.Decimal `json:"vat"`
	Amount          float64         `json:"amount"`
	Discount        float64         `json:"discount"`
	Other           float64         `json:"other"`
	BarCode         *string         `json:"barCode"`
	Label           *string         `json:"label"`
	ProductCode     string          `json:"productCode"`
	UnitCode        *string         `json:"unitCode"`
	UnitName        *string         `json:"unitName"`
	VatPercent      decimal.Decimal `json:"vatPercent"`
	CommissionTin   string          `json:"commissionTin"`
	CommissionPinfl *string         `json:"commissionPinfl"`
	PackageCode     string          `json:"packageCode"`
	PaymentDate     *string         `json:"paymentDate"`
	TerminalId      *string         `json:"terminalId"`
	Year            *int            `json:"year"`
	Month           *int            `json:"month"`
	Day             *int            `json:"day"`
	TerminalStateId *int            `json:"terminalStateId"`
	IsRefund        *bool           `json:"isRefund"`
	ExistsCommission *bool          `json:"existsCommission"`
	Vaucher         float64         `json:"vaucher"`
	IsNotLabel      *bool           `json:"isNotLabel"`
}

const (
	productCodeCommission = "10701001018000000"
	packageCodeCommission = "1495029"
)

// PayloadDefaults carries the configurable pieces of the submit payload.
type PayloadDefaults struct {
	Tin       string
	ClientIp  string
	VatTotal  float64
	CashTotal float64
	CardTotal decimal.Decimal
}

// BuildSubmitPayload constructs the correction payload for one check.
// Amounts are zeroed: this workflow only fixes the check's registration
// metadata, never its money values.
func BuildSubmitPayload(check models.Check, captcha Captcha, captchaValue string, defaults PayloadDefaults) SubmitPayload {
	tin := defaults.Tin
	if check.Tin != nil && strings.TrimSpace(*check.Tin) != "" {
		tin = *check.Tin
	}

	zero := decimal.Zero
	paymentId := check.PaymentId

	return SubmitPayload{
		PaymentId:    paymentId,
		VatTotal:     defaults.VatTotal,
		CashTotal:    defaults.CashTotal,
		CardTotal:    defaults.CardTotal,
		AttachedFile: "",
		CaptchaId:    captcha.ID,
		CaptchaValue: captchaValue,
		CardType:     "",
		NameStatus:   true,
		ClientIp:     defaults.ClientIp,
		PaymentDetails: []PaymentDetail{{
			Id:            fmt.Sprintf("%s-0", paymentId),
			PaymentId:     paymentId,
			Tin:           tin,
			Name:          fmt.Sprintf("%s-check edit", check.ReceiptId),
			Vat:           zero,
			VatPercent:    zero,
			ProductCode:   productCodeCommission,
			CommissionTin: defaults.Tin,
			PackageCode:   packageCodeCommission,
			PaymentDate:   check.PaymentDate,
		}},
		Tin:         tin,
		TerminalId:  check.TerminalId,
		PaymentDate: check.PaymentDate,
	}
}

// MakePaymentId derives the portal payment identifier: the terminal id
// followed by the receipt number left-padded with zeros to 16 digits.
func MakePaymentId(terminalId, receiptId string) string {
	receiptId = strings.TrimSpace(receiptId)
	if len(receiptId) < 16 {
		receiptId = strings.Repeat("0", 16-len(receiptId)) + receiptId
	}
	return terminalId + receiptId
}
