package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		status      VARCHAR(16)  NOT NULL,
		starts_at   DATETIME     NOT NULL,
		capacity    INT          NOT NULL,
		price_cents BIGINT       NOT NULL DEFAULT 0,
		currency    CHAR(3)      NOT NULL DEFAULT 'EUR'
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event_seats (
		event_id  VARCHAR(64) NOT NULL,
		seat_id   VARCHAR(16) NOT NULL,
		position  INT         NOT NULL,
		occupied  BOOLEAN     NOT NULL DEFAULT FALSE,
		holder_id VARCHAR(64) NULL,
		PRIMARY KEY (event_id, seat_id),
		KEY idx_event_seats_position (event_id, position)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id                   CHAR(36)    NOT NULL PRIMARY KEY,
		event_id             VARCHAR(64) NOT NULL,
		holder_id            VARCHAR(64) NOT NULL,
		seat_id              VARCHAR(16) NOT NULL,
		status               VARCHAR(16) NOT NULL,
		amount_cents         BIGINT      NOT NULL,
		currency             CHAR(3)     NOT NULL,
		payment_method       VARCHAR(32) NOT NULL,
		proof_reference      VARCHAR(128) NULL,
		payment_status       VARCHAR(16) NOT NULL,
		paid_at              DATETIME    NULL,
		checked_in           BOOLEAN     NOT NULL DEFAULT FALSE,
		checked_in_at        DATETIME    NULL,
		checked_in_by        VARCHAR(64) NULL,
		issued_at            DATETIME    NULL,
		verification_payload TEXT        NULL,
		created_at           DATETIME    NOT NULL,
		updated_at           DATETIME    NOT NULL,
		KEY idx_tickets_event_holder (event_id, holder_id, status),
		KEY idx_tickets_holder_created (holder_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS consumed_payment_proofs (
		transaction_id VARCHAR(128) NOT NULL PRIMARY KEY,
		expires_at     DATETIME     NOT NULL,
		consumed_at    DATETIME     NOT NULL,
		KEY idx_consumed_proofs_expiry (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
