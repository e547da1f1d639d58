package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the three collections of the marketplace.  exchanges keeps
// no foreign key to books or users: an exchange outlives a deleted listing
// or account and is only ever cancelled, never removed.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                    BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email                 VARCHAR(255) NOT NULL,
		password_hash         VARCHAR(255) NOT NULL,
		name                  VARCHAR(100) NOT NULL,
		bio                   TEXT NOT NULL,
		location              VARCHAR(100) NOT NULL DEFAULT '',
		profile_image         VARCHAR(255) NOT NULL DEFAULT '',
		genre_preferences     JSON NOT NULL,
		security_answers      JSON NOT NULL,
		reputation            INT NOT NULL DEFAULT 0,
		reset_code            VARCHAR(6) NULL,
		reset_code_expires_at DATETIME NULL,
		created_at            DATETIME NOT NULL,
		updated_at            DATETIME NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS books (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title       VARCHAR(255) NOT NULL,
		author      VARCHAR(255) NOT NULL,
		genre       VARCHAR(100) NOT NULL,
		description TEXT NOT NULL,
		` + "`condition`" + ` ENUM('New','Like New','Good','Fair','Poor') NOT NULL,
		location    VARCHAR(100) NOT NULL,
		status      ENUM('available','pending','exchanged') NOT NULL DEFAULT 'available',
		owner_id    BIGINT UNSIGNED NOT NULL,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL,
		KEY idx_books_status_genre (status, genre),
		KEY idx_books_location (location),
		KEY idx_books_owner (owner_id),
		CONSTRAINT fk_books_owner FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS exchanges (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		book_id          BIGINT UNSIGNED NOT NULL,
		requester_id     BIGINT UNSIGNED NOT NULL,
		owner_id         BIGINT UNSIGNED NOT NULL,
		status           ENUM('pending','accepted','rejected','cancelled','completed') NOT NULL DEFAULT 'pending',
		delivery_method  VARCHAR(20) NOT NULL,
		duration_days    SMALLINT UNSIGNED NOT NULL,
		meeting_location VARCHAR(255) NOT NULL DEFAULT '',
		notes            TEXT NOT NULL,
		last_modified_by BIGINT UNSIGNED NOT NULL,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL,
		KEY idx_exchanges_requester_status (requester_id, status),
		KEY idx_exchanges_owner_status (owner_id, status),
		KEY idx_exchanges_book (book_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS exchange_messages (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		exchange_id BIGINT UNSIGNED NOT NULL,
		sender_id   BIGINT UNSIGNED NOT NULL,
		content     TEXT NOT NULL,
		is_system   TINYINT(1) NOT NULL DEFAULT 0,
		is_read     TINYINT(1) NOT NULL DEFAULT 0,
		notified    TINYINT(1) NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL,
		KEY idx_messages_exchange_read (exchange_id, is_read),
		CONSTRAINT fk_messages_exchange FOREIGN KEY (exchange_id) REFERENCES exchanges(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
