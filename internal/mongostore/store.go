package mongostore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"time"
)

const (
	ordersCollection = "orders"
	cartsCollection  = "carts"
)

type cart struct {
	UserID    string            `bson:"user_id"`
	Items     []orders.CartItem `bson:"items"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// Store keeps orders and carts in MongoDB. It satisfies the same contracts as the Postgres repos.
type Store struct {
	db     *mongo.Database
	orders *mongo.Collection
	carts  *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:     db,
		orders: db.Collection(ordersCollection),
		carts:  db.Collection(cartsCollection),
	}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "gateway_token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("gateway_token_unique"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	_, err = s.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *orders.Order) error {
	if _, err := s.orders.InsertOne(ctx, o); err != nil {
		if duplicateKey(err) {
			n, cerr := s.orders.CountDocuments(ctx, bson.M{"gateway_token": o.GatewayToken})
			if cerr == nil && n > 0 {
				return orders.ErrDuplicateToken
			}
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// duplicateKey reports whether a write failed on a unique index.
func duplicateKey(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 11000 {
			return true
		}
	}
	return false
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) GetOrderByToken(ctx context.Context, token string) (*orders.Order, error) {
	return s.findOne(ctx, bson.M{"gateway_token": token})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*orders.Order, error) {
	var o orders.Order
	if err := s.orders.FindOne(ctx, filter).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, orders.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	cur, err := s.orders.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := []orders.Order{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return out, nil
}

// SettleOrder is the Mongo counterpart of orders.Repo.SettleOrder: the order update is filtered on
// status pending and an approval empties the cart in the same transaction.
func (s *Store) SettleOrder(ctx context.Context, token string, st orders.Settlement) (*orders.Order, error) {
	if !orders.CanTransition(orders.StatusPending, st.Status) {
		return nil, fmt.Errorf("invalid settlement status %q", st.Status)
	}

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		update := bson.M{"$set": bson.M{
			"status":             st.Status,
			"payment_status":     st.PaymentStatus(),
			"authorization_code": st.AuthorizationCode,
			"card_number":        st.CardNumber,
			"response_code":      st.ResponseCode,
			"vci":                st.VCI,
			"transaction_date":   st.TransactionDate,
			"payment_type_code":  st.PaymentTypeCode,
			"installments":       st.Installments,
			"gateway_status":     st.GatewayStatus,
			"confirmed_at":       st.ConfirmedAt,
		}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var o orders.Order
		err := s.orders.FindOneAndUpdate(sc, bson.M{"gateway_token": token, "status": orders.StatusPending}, update, opts).Decode(&o)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, cerr := s.orders.CountDocuments(sc, bson.M{"gateway_token": token})
			if cerr != nil {
				return nil, cerr
			}
			if n > 0 {
				return nil, orders.ErrAlreadySettled
			}
			return nil, orders.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to settle order: %w", err)
		}

		if st.Status == orders.StatusApproved {
			_, err := s.carts.UpdateOne(sc, bson.M{"user_id": o.UserID},
				bson.M{"$set": bson.M{"items": []orders.CartItem{}, "updated_at": st.ConfirmedAt}})
			if err != nil {
				return nil, fmt.Errorf("failed to clear cart: %w", err)
			}
		}
		return &o, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*orders.Order), nil
}

func (s *Store) ListCart(ctx context.Context, userID string) ([]orders.CartItem, error) {
	var c cart
	err := s.carts.FindOne(ctx, bson.M{"user_id": userID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []orders.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []orders.CartItem{}
	}
	return c.Items, nil
}

// AddCartItem merges it into an existing line or pushes a new one, creating the cart on first use.
func (s *Store) AddCartItem(ctx context.Context, userID string, it orders.CartItem) error {
	now := time.Now().UTC()
	if it.AddedAt.IsZero() {
		it.AddedAt = now
	}

	line := bson.M{"user_id": userID, "items": bson.M{"$elemMatch": bson.M{
		"product_id": it.ProductID, "size": it.Size, "color": it.Color,
	}}}
	res, err := s.carts.UpdateOne(ctx, line, bson.M{
		"$inc": bson.M{"items.$.quantity": it.Quantity},
		"$set": bson.M{"items.$.price": it.Price, "items.$.name": it.Name, "updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("failed to update cart line: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	_, err = s.carts.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$push": bson.M{"items": it},
		"$set":  bson.M{"updated_at": now},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

func (s *Store) RemoveCartItem(ctx context.Context, userID, productID string) error {
	_, err := s.carts.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}
