package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	// KeyRecord is a private key in its {"algorithm", "data"} form.
	KeyRecord struct {
		Algorithm string `bson:"algorithm"`
		Data      string `bson:"data"`
	}

	// User is a local account: the identity key signs, the visa key is
	// published for others to encrypt to.
	User struct {
		ID      primitive.ObjectID `bson:"_id,omitempty"`
		Name    string             `bson:"name"`
		DID     string             `bson:"did"`
		SignKey KeyRecord          `bson:"sign_key"`
		VisaKey KeyRecord          `bson:"visa_key"`
		// Meta and Visa hold the signed JSON records.
		Meta string `bson:"meta"`
		Visa string `bson:"visa"`
	}
)
