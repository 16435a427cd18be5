package store

import "database/sql"

// Store is a single connection to the summary data source. It is opened
// for one request and closed when the request is done.
type Store struct {
	db *sql.DB
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
