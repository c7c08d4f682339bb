package queue

import "context"

// ExecForTest runs raw SQL against the store's database.
func (s *Store) ExecForTest(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}
