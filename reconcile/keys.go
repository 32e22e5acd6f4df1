// Package reconcile implements the payment-to-invoice matching core:
// invoice tracking, reference extraction, the payment matcher, transaction
// records, API key and merchant mappings, and failed-update bookkeeping.
package reconcile

import "time"

// Key prefixes in the backing store. Values are JSON-encoded structs.
const (
	keyPendingAmount    = "pending_invoice_amount_"      // + {tenant}_{amountMinor}
	keyPendingReference = "pending_invoice_number_"      // + {tenant}_{REF}
	keyInvoiceLocation  = "invoice_location_"            // + {REF}
	keyUnmatchedPayment = "unmatched_payment_"           // + {chargeId}
	keyTransaction      = "transaction_"                 // + {chargeId}
	keyCRMTransaction   = "ghl_transaction_"             // + {crmTxnId}
	keyAPIKey           = "api_key_"                     // + {apiKey}
	keyFailedUpdate     = "failed_invoice_update_"       // + {chargeId}
	keyMerchant         = "merchant_"                    // + {merchantId}
	keyNotification     = "invoice_update_notification_" // + {paymentId}
)

const (
	amountIndexTTL    = 24 * time.Hour
	referenceIndexTTL = 7 * 24 * time.Hour
	unmatchedTTL      = 7 * 24 * time.Hour
	transactionTTL    = 7 * 24 * time.Hour
	failedUpdateTTL   = 24 * time.Hour
	notificationTTL   = 7 * 24 * time.Hour

	// amountFreshness bounds amount-based matching independently of the
	// stored entry's TTL: an amount index older than this is treated as
	// absent even though the store may still hold it.
	amountFreshness = 10 * time.Minute
)
