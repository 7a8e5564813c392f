package domtest

const ContactRaw = `{
"Object": {
	"description": "Base feather with identity and timestamps",
	"properties": {
		"id": {"type": "string", "default": "createId()"},
		"created": {"type": "string", "format": "dateTime", "isReadOnly": true},
		"updated": {"type": "string", "format": "dateTime", "isReadOnly": true}
	}
},
"Contact": {
	"inherits": "Object",
	"properties": {
		"firstName": {"type": "string", "isRequired": true},
		"lastName": {"type": "string"},
		"fullName": {"type": "string", "isReadOnly": true},
		"email": {"type": "string", "format": "email"},
		"birthDate": {"type": "string", "format": "date", "default": null}
	}
},
"CurrencyUnit": {
	"inherits": "Object",
	"properties": {
		"code": {"type": "string", "isRequired": true},
		"description": {"type": "string"},
		"minorUnit": {"type": "integer", "default": 2}
	},
	"rules": [
		{"name": "codeSize", "expr": "self.code == null || size(self.code) <= 4",
		"message": "code may not be more than 4 characters"}
	]
}
}`

func ContactFixture() (*Fixture, error) {
	return New("contact", ContactRaw, map[string][]map[string]interface{}{
		"/data/contacts": {
			{"id": "c1", "firstName": "Ada", "lastName": "Lovelace"},
			{"id": "c2", "firstName": "Alan", "lastName": "Turing"},
		},
		"/data/currency-units": {
			{"id": "u1", "code": "EUR", "description": "Euro", "minorUnit": 2},
		},
	})
}
