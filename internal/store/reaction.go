package store

// UpsertReaction stores a user's reaction on a message. One reaction per
// (message, user); reacting again replaces the previous one.
func (db *DB) UpsertReaction(r *Reaction) error {
	_, err := db.Exec(`
		INSERT INTO reactions (id, message_id, user_id, reaction, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_id, user_id) DO UPDATE SET
			reaction = excluded.reaction,
			timestamp = excluded.timestamp
		ON CONFLICT(id) DO UPDATE SET
			reaction = excluded.reaction,
			timestamp = excluded.timestamp`,
		r.ID, r.MessageID, r.UserID, r.Reaction, r.Timestamp)
	return err
}

// ListReactions returns all reactions for a message.
func (db *DB) ListReactions(messageID string) ([]Reaction, error) {
	rows, err := db.Query(`
		SELECT id, message_id, user_id, reaction, timestamp
		FROM reactions WHERE message_id = ? ORDER BY timestamp ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Reaction, &r.Timestamp); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
