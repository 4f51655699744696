package workload

import (
	"encoding/json"

	"github.com/brianvoe/gofakeit/v6"
)

// Fixed user document so the query steps have a known email to match.
const (
	userKey   = "user::john_doe"
	userEmail = "john.doe@example.com"

	userDocument = `{"name": "John Doe", "email": "john.doe@example.com", "age": 30}`

	updatedUserDocument = `{"name": "John Doe", "email": "john.doe@example.com", "age": 31, "city": "Lisbon"}`
)

// itemDocument builds one synthetic inventory document.
func itemDocument(n int) string {
	doc := map[string]interface{}{
		"index":    n,
		"owner":    gofakeit.Name(),
		"city":     gofakeit.City(),
		"price":    gofakeit.Price(1, 100),
		"quantity": gofakeit.Number(1, 50),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return `{"index": 0}`
	}
	return string(b)
}
