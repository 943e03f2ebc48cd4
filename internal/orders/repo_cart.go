package orders

import (
	"context"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type CartRepo struct{ DB *pgxpool.Pool }

func (r *CartRepo) ListCart(ctx context.Context, userID string) ([]CartItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, price, quantity, size, color, image, added_at
		FROM cart_items WHERE user_id=$1 ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CartItem{}
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.Size, &it.Color, &it.Image, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddCartItem adds it to the cart, merging quantities when the same line already exists.
func (r *CartRepo) AddCartItem(ctx context.Context, userID string, it CartItem) error {
	if it.AddedAt.IsZero() {
		it.AddedAt = time.Now().UTC()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items(user_id, product_id, name, price, quantity, size, color, image, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, product_id, size, color)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price, name = EXCLUDED.name`,
		userID, it.ProductID, it.Name, it.Price, it.Quantity, it.Size, it.Color, it.Image, it.AddedAt,
	)
	return err
}

// RemoveCartItem drops every line of productID. Removing an absent product is not an error.
func (r *CartRepo) RemoveCartItem(ctx context.Context, userID, productID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2`, userID, productID)
	return err
}
