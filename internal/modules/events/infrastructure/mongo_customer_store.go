package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"customerWs/internal/modules/events/application/port"
	"customerWs/internal/modules/events/domain"
)

// Fields a client may change through customer_update.
var updatableFields = map[string]struct{}{
	"email":     {},
	"firstName": {},
	"lastName":  {},
	"phone":     {},
	"addresses": {},
}

// MongoCustomerStore is the MongoDB implementation of port.CustomerStore.
type MongoCustomerStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoCustomerStore(db *mongo.Database, collectionName string) *MongoCustomerStore {
	return &MongoCustomerStore{
		collection: db.Collection(collectionName),
		now:        time.Now,
	}
}

// UpdateCustomer applies fields with $set and returns the updated document.
func (s *MongoCustomerStore) UpdateCustomer(ctx context.Context, customerID string, fields map[string]any) (*domain.Customer, error) {
	set, err := buildUpdateSet(fields, s.now())
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var customer domain.Customer
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": customerID}, bson.M{"$set": set}, opts).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", port.ErrCustomerNotFound, customerID)
		}
		return nil, fmt.Errorf("update customer %s: %w", customerID, err)
	}
	return &customer, nil
}

// EnsureProfile inserts the customer unless a document with the same id
// exists. Existing documents are left untouched.
func (s *MongoCustomerStore) EnsureProfile(ctx context.Context, customer domain.Customer) (bool, error) {
	if strings.TrimSpace(customer.ID) == "" {
		return false, errors.New("ensure profile: missing customer id")
	}
	opts := options.Update().SetUpsert(true)
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": customer.ID}, bson.M{"$setOnInsert": profileDocument(customer, s.now())}, opts)
	if err != nil {
		return false, fmt.Errorf("ensure profile %s: %w", customer.ID, err)
	}
	return res.UpsertedCount > 0, nil
}

func buildUpdateSet(fields map[string]any, now time.Time) (bson.M, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", port.ErrInvalidUpdate)
	}
	set := bson.M{}
	var rejected []string
	for key, value := range fields {
		name := strings.TrimSpace(key)
		if _, ok := updatableFields[name]; !ok {
			rejected = append(rejected, key)
			continue
		}
		set[name] = value
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return nil, fmt.Errorf("%w: fields not updatable: %s", port.ErrInvalidUpdate, strings.Join(rejected, ", "))
	}
	set["updatedAt"] = now.UTC()
	return set, nil
}

func profileDocument(c domain.Customer, now time.Time) bson.M {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now.UTC()
	}
	return bson.M{
		"email":      c.Email,
		"firstName":  c.FirstName,
		"lastName":   c.LastName,
		"isVerified": false,
		"createdAt":  createdAt,
		"updatedAt":  createdAt,
	}
}

var _ port.CustomerStore = (*MongoCustomerStore)(nil)
