package httpx

import (
	"encoding/json"
	"fmt"
	"github.com/xeipuuv/gojsonschema"
	"io"
	"net/http"
	"strings"
)

const maxBody = 1 << 20

// Amount and item count are left to the payment service so its messages reach the caller.
const schemaCreatePayment = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["amount", "items"],
  "properties": {
    "amount": { "type": "integer" },
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["productId", "quantity"],
        "properties": {
          "productId": { "type": "string" },
          "name": { "type": "string" },
          "price": { "type": "integer" },
          "quantity": { "type": "integer" },
          "size": { "type": "string" },
          "color": { "type": "string" },
          "image": { "type": "string" }
        }
      }
    },
    "shippingData": {
      "type": "object",
      "properties": {
        "fullName": { "type": "string" },
        "email": { "type": "string" },
        "phone": { "type": "string" },
        "address": { "type": "string" },
        "commune": { "type": "string" },
        "region": { "type": "string" },
        "notes": { "type": "string" }
      }
    }
  }
}`

const schemaConfirmPayment = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "token": { "type": "string" }
  }
}`

const schemaAddCartItem = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["productId", "quantity"],
  "properties": {
    "productId": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "price": { "type": "integer", "minimum": 0 },
    "quantity": { "type": "integer", "minimum": 1 },
    "size": { "type": "string" },
    "color": { "type": "string" },
    "image": { "type": "string" }
  }
}`

var (
	createPaymentLoader  = gojsonschema.NewStringLoader(schemaCreatePayment)
	confirmPaymentLoader = gojsonschema.NewStringLoader(schemaConfirmPayment)
	addCartItemLoader    = gojsonschema.NewStringLoader(schemaAddCartItem)
)

// decodeBody reads the body, checks it against schema and decodes it into v. A failure has already
// been written to w when it returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, schema gojsonschema.JSONLoader, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		badRequest(w, "could not read body")
		return false
	}
	if err := validateJSONSchema(schema, body); err != nil {
		badRequest(w, err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

func validateJSONSchema(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid json")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
	}
	return nil
}
