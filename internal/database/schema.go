package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema mirrors the document layout: showtimes are children of movies,
// screens and seats are children of theaters.  Times are stored with
// millisecond precision.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'CUSTOMER',
		created_at    DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS movies (
		id           CHAR(36)     NOT NULL PRIMARY KEY,
		title        VARCHAR(255) NOT NULL,
		description  TEXT         NOT NULL,
		duration     INT          NOT NULL,
		language     VARCHAR(64)  NOT NULL,
		genre        JSON         NOT NULL,
		release_date DATETIME(3)  NOT NULL,
		poster_url   VARCHAR(1024) NOT NULL DEFAULT '',
		rating       DOUBLE       NOT NULL DEFAULT 0,
		created_at   DATETIME(3)  NOT NULL,
		updated_at   DATETIME(3)  NOT NULL,
		KEY idx_movies_release (release_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS showtimes (
		id              CHAR(36)      NOT NULL PRIMARY KEY,
		movie_id        CHAR(36)      NOT NULL,
		position        INT           NOT NULL,
		theater_id      CHAR(36)      NOT NULL,
		screen_number   INT           NULL,
		starts_at       DATETIME(3)   NOT NULL,
		price           DECIMAL(10,2) NOT NULL,
		capacity        INT           NOT NULL,
		available_seats INT           NOT NULL,
		UNIQUE KEY uq_showtime_slot (movie_id, theater_id, starts_at),
		CONSTRAINT fk_showtimes_movie FOREIGN KEY (movie_id) REFERENCES movies (id) ON DELETE CASCADE,
		CONSTRAINT chk_showtimes_available CHECK (available_seats BETWEEN 0 AND capacity)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS theaters (
		id         CHAR(36)     NOT NULL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		address    VARCHAR(255) NOT NULL DEFAULT '',
		city       VARCHAR(128) NOT NULL DEFAULT '',
		state      VARCHAR(128) NOT NULL DEFAULT '',
		zip_code   VARCHAR(32)  NOT NULL DEFAULT '',
		amenities  JSON         NOT NULL,
		created_at DATETIME(3)  NOT NULL,
		updated_at DATETIME(3)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS screens (
		theater_id    CHAR(36) NOT NULL,
		screen_number  INT         NOT NULL,
		total_seats    INT         NOT NULL,
		bound_movie_id CHAR(36)    NULL,
		bound_at       DATETIME(3) NULL,
		PRIMARY KEY (theater_id, screen_number),
		KEY idx_screens_bound (bound_movie_id),
		CONSTRAINT fk_screens_theater FOREIGN KEY (theater_id) REFERENCES theaters (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seats (
		theater_id    CHAR(36)    NOT NULL,
		screen_number INT         NOT NULL,
		seat_row      VARCHAR(8)  NOT NULL,
		seat_column   INT         NOT NULL,
		status        VARCHAR(16) NOT NULL DEFAULT 'available',
		booked_by     CHAR(36)    NULL,
		booking_time  DATETIME(3) NULL,
		booking_id    CHAR(36)    NULL,
		PRIMARY KEY (theater_id, screen_number, seat_row, seat_column),
		CONSTRAINT fk_seats_screen FOREIGN KEY (theater_id, screen_number) REFERENCES screens (theater_id, screen_number) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id             CHAR(36)      NOT NULL PRIMARY KEY,
		user_id        CHAR(36)      NOT NULL,
		movie_id       CHAR(36)      NOT NULL,
		theater_id     CHAR(36)      NOT NULL,
		showtime       DATETIME(3)   NOT NULL,
		seats          JSON          NOT NULL,
		total_amount   DECIMAL(10,2) NOT NULL,
		status         VARCHAR(16)   NOT NULL,
		payment_status VARCHAR(16)   NOT NULL,
		created_at     DATETIME(3)   NOT NULL,
		updated_at     DATETIME(3)   NOT NULL,
		KEY idx_bookings_user (user_id, created_at),
		KEY idx_bookings_movie (movie_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
