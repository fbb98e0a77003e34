package validators

import "go.mongodb.org/mongo-driver/bson"

var StockUnitValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_id",
			"name",
			"kind",
			"capacity",
			"stock",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 120,
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"ticket",
					"merch",
				},
			},

			"capacity": bson.M{
				"bsonType": "int",
				"minimum":  1,
			},

			// No minimum on purpose: negative stock is a detectable fault
			// state, not an unrepresentable one.
			"stock": bson.M{
				"bsonType": "int",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"available",
					"low_stock",
					"out_of_stock",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var LedgerEntryValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"unit_id",
			"delta",
			"reason",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"unit_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"delta": bson.M{
				"bsonType": "int",
			},

			"reason": bson.M{
				"bsonType": "string",
				"enum": []string{
					"purchase",
					"restock",
					"manual_correction",
					"return",
					"cancellation",
					"damage",
				},
			},

			"order_ref": bson.M{
				"bsonType":  "string",
				"maxLength": 120,
			},

			"operator": bson.M{
				"bsonType":  "string",
				"maxLength": 120,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var AuditIssueValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"unit_id",
			"code",
			"severity",
			"detail",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"unit_id": bson.M{
				"bsonType": "string",
			},

			"code": bson.M{
				"bsonType": "string",
				"enum": []string{
					"negative_stock",
					"ledger_drift",
				},
			},

			"severity": bson.M{
				"bsonType": "string",
				"enum": []string{
					"warning",
					"critical",
				},
			},

			"detail": bson.M{
				"bsonType": "string",
			},

			"stock": bson.M{
				"bsonType": "int",
			},

			"ledger_sum": bson.M{
				"bsonType": "long",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var OrderValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"resource_id": bson.M{
				"bsonType": "string",
			},

			"participant_id": bson.M{
				"bsonType": "string",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"reserved",
					"paid",
					"fulfilled",
					"cancelled",
					"backordered",
				},
			},

			"lines": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"unit_id", "quantity"},
					"properties": bson.M{
						"unit_id": bson.M{
							"bsonType": "string",
						},
						"quantity": bson.M{
							"bsonType": "int",
							"minimum":  1,
						},
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
