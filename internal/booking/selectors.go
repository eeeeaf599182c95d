package booking

import (
	"fmt"
	"strings"
)

// XPath selectors for queropassagem.com.br. Each one resolves to a single
// element; alternatives are unioned and narrowed to the first match.

var (
	cookieAcceptButton = first(
		buttonContaining("Aceitar"),
		buttonContaining("Concordo"),
		buttonContaining("OK"),
		`//*[@id='lgpd-accept']`,
	)

	outboundSeatMap = first(`//*[@id='trecho']//*[` + hasClass("onibus") + ` and ` + hasClass("IDA") + `]`)

	// The return leg container is unconfirmed on the live site. This mirrors
	// the outbound structure and can be overridden with trip.return_seat_map.
	defaultReturnSeatMap = first(`//*[@id='trecho']//*[` + hasClass("onibus") + ` and ` + hasClass("VOLTA") + `]`)

	confirmSeatButton = first(
		`//button[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), 'confirmar')]`,
		buttonContaining("Prosseguir"),
		buttonContaining("Avançar"),
	)

	checkoutButton = first(
		buttonContaining("Ir para pagamento"),
		buttonContaining("Finalizar Compra"),
		buttonContaining("Avançar para pagamento"),
		`//*[@id='submit-button']`,
		`//*[@data-testid='checkout-button']`,
		`//*[@data-cy='payment-button']`,
	)
)

// departureRow matches the results row whose data attribute holds the exact departure timestamp.
func departureRow(key string) string {
	return `//div[` + hasClass("linha") + ` and @data=` + literal(key) + `]`
}

func chooseOutboundButton(key string) string {
	return departureRow(key) + `//input[` + hasClass("submit") + ` and @value='ESCOLHER IDA']`
}

// seatIn matches the element inside container whose own text is exactly the seat label.
func seatIn(container string, seat int) string {
	return first(container + fmt.Sprintf(`//*[normalize-space(text())='%d']`, seat))
}

func hasClass(class string) string {
	return fmt.Sprintf(`contains(concat(' ', normalize-space(@class), ' '), ' %s ')`, class)
}

func buttonContaining(text string) string {
	return `//button[contains(normalize-space(.), ` + literal(text) + `)]`
}

func first(alternatives ...string) string {
	return "(" + strings.Join(alternatives, " | ") + ")[1]"
}

// literal quotes s as an XPath 1.0 string literal. XPath has no escapes, so a
// value holding both quote kinds is built with concat().
func literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
