package domtest

const OrderRaw = `{
"Object": {
	"properties": {
		"id": {"type": "string", "default": "createId()"}
	}
},
"Contact": {
	"inherits": "Object",
	"properties": {
		"firstName": {"type": "string", "isRequired": true},
		"lastName": {"type": "string"},
		"phone": {"type": "string", "format": "tel"}
	}
},
"Order": {
	"inherits": "Object",
	"properties": {
		"number": {"type": "integer", "isRequired": true},
		"orderDate": {"type": "string", "format": "date"},
		"customer": {"type": {"relation": "Contact", "properties": ["firstName", "lastName"]}},
		"lines": {"type": {"relation": "OrderLine", "parentOf": "order"}},
		"total": {"type": "number", "scale": 2, "default": 0}
	}
},
"OrderLine": {
	"inherits": "Object",
	"properties": {
		"order": {"type": {"relation": "Order", "childOf": "lines"}},
		"item": {"type": "string", "isRequired": true},
		"quantity": {"type": "integer", "default": 1},
		"price": {"type": "object", "format": "money"}
	}
}
}`

func OrderFixture() (*Fixture, error) {
	return New("order", OrderRaw, map[string][]map[string]interface{}{
		"/data/orders": {{
			"id": "o1", "number": 1001, "orderDate": "2024-03-01", "total": 30,
			"customer": map[string]interface{}{"id": "c1", "firstName": "Ada", "lastName": "Lovelace"},
			"lines": []interface{}{
				map[string]interface{}{"id": "l1", "item": "pen", "quantity": 2, "price": map[string]interface{}{"amount": 5, "currency": "EUR"}},
				map[string]interface{}{"id": "l2", "item": "ink", "quantity": 1, "price": map[string]interface{}{"amount": 20, "currency": "EUR"}},
			},
		}},
		"/data/contacts": {
			{"id": "c1", "firstName": "Ada", "lastName": "Lovelace"},
		},
	})
}
