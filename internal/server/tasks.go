package server

import (
	"fmt"

	"gateway-agent/internal/credentials"
)

// buildReceiptTask renders the browsing instructions for emailing a
// transaction receipt through the merchant gateway.
func buildReceiptTask(gatewayURL string, secret *credentials.Secret, transactionID, clientEmail string) string {
	return fmt.Sprintf(`Go to %s,
log in using username: %s, password: %s,
If an alert appears about a test account, close it,
search for the transaction ID %s,
click on the id of the result, click email receipt,
wait for the tab to load, use %s as the client's email
to send the receipt. After you send the receipt, return the response "receipt sent to %s."
After closing the session, the next message must contain exactly 0 tool calls.`,
		gatewayURL, secret.Username, secret.Password, transactionID, clientEmail, clientEmail)
}

// buildRefundTask renders the browsing instructions for issuing a
// refund. The amount field is pre-filled by the gateway, so the
// instructions have the model select its contents before typing.
func buildRefundTask(gatewayURL string, secret *credentials.Secret, transactionID string, amount float64) string {
	return fmt.Sprintf(`Go to %s,
log in using username: %s, password: %s,
If an alert appears about a test account, close it,
click on the credit card icon in the top left
click on the refund option
input the transaction ID %s, then click on the field to input the refund
after clicking on the amount field, triple click in the field (or just select/highlight all the numbers in the field) and input the refund amount %.2f
press refund
close the session
After closing the session, the next message must contain exactly 0 tool calls.`,
		gatewayURL, secret.Username, secret.Password, transactionID, amount)
}
