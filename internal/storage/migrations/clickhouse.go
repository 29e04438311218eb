package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	chstore "wallet-fleet/internal/storage/clickhouse"
)

var errSemicolonInString = errors.New("semicolon inside string literal")

// RunClickhouseMigrations creates the ledger database if needed, applies the
// embedded schema and returns a connection to the ledger database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName)
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	if err := applyClickhouse(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn) error {
	names, contents, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}

	for _, name := range names {
		stmts, err := splitStatements(contents[name])
		if err != nil {
			return fmt.Errorf("split migration %s: %w", name, err)
		}
		// The native protocol executes one statement per call.
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// splitStatements drops -- comment lines and splits on semicolons.
// Migrations must not put semicolons inside string literals.
func splitStatements(input string) ([]string, error) {
	var lines []string
	for _, line := range strings.Split(input, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	body := strings.Join(lines, "\n")

	inString := false
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '\'' && i+1 < len(body) && body[i+1] == '\'':
			i++
		case body[i] == '\'':
			inString = !inString
		case body[i] == ';' && inString:
			return nil, errSemicolonInString
		}
	}

	var stmts []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn missing database")
	}
	return db, nil
}
