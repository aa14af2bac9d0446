package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Money columns are TEXT so decimal strings round-trip without float drift.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            full_name TEXT NOT NULL DEFAULT '',
            password TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('ADMIN', 'MANAGER', 'CASHIER')),
            is_active INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS medicines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE COLLATE NOCASE,
            brand TEXT NOT NULL DEFAULT '',
            form TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT 'other',
            selling_price TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS batches (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            medicine_id INTEGER NOT NULL,
            batch_number TEXT NOT NULL DEFAULT '',
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            cost_price TEXT NOT NULL,
            selling_price TEXT NOT NULL,
            expiry_date TEXT,
            received_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(medicine_id) REFERENCES medicines(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_batches_medicine ON batches(medicine_id, expiry_date);`,
	`CREATE TABLE IF NOT EXISTS sales (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            invoice_number TEXT NOT NULL UNIQUE,
            user_id INTEGER NOT NULL,
            payment_method TEXT NOT NULL,
            total_amount TEXT NOT NULL,
            sale_date TEXT NOT NULL,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sale_id INTEGER NOT NULL,
            medicine_id INTEGER NOT NULL,
            batch_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL,
            unit_price TEXT NOT NULL,
            subtotal TEXT NOT NULL,
            FOREIGN KEY(sale_id) REFERENCES sales(id),
            FOREIGN KEY(medicine_id) REFERENCES medicines(id),
            FOREIGN KEY(batch_id) REFERENCES batches(id)
        );`,
}

// Run creates the database schema required for the POS backend.
func Run(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
