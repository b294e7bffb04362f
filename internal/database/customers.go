package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wxsync/internal/models"
)

// BulkUpsertCustomers inserts unseen customers and overwrites the mutable
// fields of existing ones, keyed by (operator, corp, staff, external id).
// Returns how many were added and how many updated.
func (db *DB) BulkUpsertCustomers(ctx context.Context, customers []models.Customer) (added, updated int, err error) {
	if len(customers) == 0 {
		return 0, 0, nil
	}

	scope := customers[0]
	externalIDs := make([]string, 0, len(customers))
	for _, c := range customers {
		externalIDs = append(externalIDs, c.ExternalID)
	}

	existing, err := db.existingExternalIDs(ctx, scope.OperatorID, scope.CorpID, scope.StaffID, externalIDs)
	if err != nil {
		return 0, 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, c := range customers {
		tagIDs, err := json.Marshal(c.TagIDs)
		if err != nil {
			return 0, 0, fmt.Errorf("encode tag ids: %w", err)
		}
		mobiles, err := json.Marshal(c.RemarkMobiles)
		if err != nil {
			return 0, 0, fmt.Errorf("encode remark mobiles: %w", err)
		}

		if existing[c.ExternalID] {
			_, err = tx.ExecContext(ctx,
				`UPDATE customers SET
                    name = ?, position = ?, avatar = ?, corp_name = ?, corp_full_name = ?,
                    type = ?, gender = ?, union_id = ?, remark = ?, description = ?,
                    contact_time = ?, tag_ids = ?, remark_corp_name = ?, remark_mobiles = ?,
                    add_way = ?, state = ?, channel_nickname = ?, updated_at = ?
                 WHERE operator_id = ? AND corp_id = ? AND staff_id = ? AND external_id = ?`,
				c.Name, c.Position, c.Avatar, c.CorpName, c.CorpFullName,
				c.Type, c.Gender, c.UnionID, c.Remark, c.Description,
				c.ContactTime, string(tagIDs), c.RemarkCorpName, string(mobiles),
				c.AddWay, c.State, c.ChannelNickname, now,
				c.OperatorID, c.CorpID, c.StaffID, c.ExternalID)
			if err != nil {
				return 0, 0, fmt.Errorf("update customer %s: %w", c.ExternalID, err)
			}
			updated++
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO customers (
                    operator_id, corp_id, staff_id, external_id,
                    name, position, avatar, corp_name, corp_full_name,
                    type, gender, union_id, remark, description,
                    contact_time, tag_ids, remark_corp_name, remark_mobiles,
                    add_way, state, channel_nickname, created_at, updated_at
                 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.OperatorID, c.CorpID, c.StaffID, c.ExternalID,
				c.Name, c.Position, c.Avatar, c.CorpName, c.CorpFullName,
				c.Type, c.Gender, c.UnionID, c.Remark, c.Description,
				c.ContactTime, string(tagIDs), c.RemarkCorpName, string(mobiles),
				c.AddWay, c.State, c.ChannelNickname, now, now)
			if err != nil {
				return 0, 0, fmt.Errorf("insert customer %s: %w", c.ExternalID, err)
			}
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert: %w", err)
	}
	return added, updated, nil
}

func (db *DB) existingExternalIDs(ctx context.Context, operatorID, corpID, staffID string, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(externalIDs))

	// sqlite caps bound parameters, so probe in chunks.
	const chunkSize = 500
	for start := 0; start < len(externalIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(externalIDs) {
			end = len(externalIDs)
		}
		chunk := externalIDs[start:end]

		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]

		args := []any{operatorID, corpID, staffID}
		for _, id := range chunk {
			args = append(args, id)
		}

		rows, err := db.QueryContext(ctx,
			`SELECT external_id FROM customers
             WHERE operator_id = ? AND corp_id = ? AND staff_id = ? AND external_id IN (`+placeholders+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("query existing customers: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan external id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func (db *DB) CountCustomers(ctx context.Context, operatorID, corpID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM customers WHERE operator_id = ? AND corp_id = ?`,
		operatorID, corpID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	return count, nil
}

func (db *DB) GetCustomers(ctx context.Context, operatorID, corpID string, offset, limit int) ([]models.Customer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, operator_id, corp_id, staff_id, external_id,
                name, position, avatar, corp_name, corp_full_name,
                type, gender, union_id, remark, description,
                contact_time, tag_ids, remark_corp_name, remark_mobiles,
                add_way, state, channel_nickname, created_at, updated_at
         FROM customers WHERE operator_id = ? AND corp_id = ?
         ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		operatorID, corpID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		var tagIDs, mobiles string
		err := rows.Scan(&c.ID, &c.OperatorID, &c.CorpID, &c.StaffID, &c.ExternalID,
			&c.Name, &c.Position, &c.Avatar, &c.CorpName, &c.CorpFullName,
			&c.Type, &c.Gender, &c.UnionID, &c.Remark, &c.Description,
			&c.ContactTime, &tagIDs, &c.RemarkCorpName, &mobiles,
			&c.AddWay, &c.State, &c.ChannelNickname, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		if err := json.Unmarshal([]byte(tagIDs), &c.TagIDs); err != nil {
			return nil, fmt.Errorf("decode tag ids: %w", err)
		}
		if err := json.Unmarshal([]byte(mobiles), &c.RemarkMobiles); err != nil {
			return nil, fmt.Errorf("decode remark mobiles: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// GetCustomerUnionIDs returns the distinct non-empty union ids for an
// operator's corp, for the plain-text export.
func (db *DB) GetCustomerUnionIDs(ctx context.Context, operatorID, corpID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT union_id FROM customers
         WHERE operator_id = ? AND corp_id = ? AND union_id != '' ORDER BY union_id`,
		operatorID, corpID)
	if err != nil {
		return nil, fmt.Errorf("query union ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan union id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
