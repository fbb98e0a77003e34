package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"sale_status",
			"capacity",
			"next_sequence",
			"sale_opens_at",
			"sale_closes_at",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 120,
			},

			"sale_status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"upcoming",
					"on_sale",
					"sold_out",
					"closed",
					"cancelled",
				},
			},

			"capacity": bson.M{
				"bsonType": "int",
				"minimum":  1,
			},

			"next_sequence": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"sale_opens_at": bson.M{
				"bsonType": "date",
			},

			"sale_closes_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
