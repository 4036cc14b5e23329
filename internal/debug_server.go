// Package internal holds the store inspector, a debug-only HTTP page that
// renders the raw badger keyspace. It is never mounted on the public router.
package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves the inspector on its own port, away from the
// public listener.
func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = ChatMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// ChatMapper decodes the chat keyspace: msg:{room}:{nanos}:{id},
// room:{id}, user:{id} and msgidx:{id}.
func ChatMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	switch parts[0] {
	case "msg":
		row.Type = "MESSAGE"
		if len(parts) == 4 {
			row.Namespace = "room " + parts[1]
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			row.EntityID = strings.TrimLeft(parts[3], "0")
		}
		row.Detail = summarize(val)
	case "room":
		row.Type = "ROOM"
		row.Namespace = "rooms"
		if len(parts) == 2 {
			row.EntityID = strings.TrimLeft(parts[1], "0")
		}
		row.Detail = summarize(val)
	case "user":
		row.Type = "USER"
		row.Namespace = "users"
		if len(parts) == 2 {
			row.EntityID = parts[1]
		}
		row.Detail = summarize(val)
	case "msgidx":
		row.Type = "INDEX"
		row.Namespace = "messages"
		if len(parts) == 2 {
			row.EntityID = strings.TrimLeft(parts[1], "0")
		}
		row.Detail = "-> " + string(val)
	}
	return row
}

// summarize renders a stored JSON value as a one-line digest.
func summarize(val []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(val, &decoded); err != nil {
		return "Size: " + strconv.Itoa(len(val)) + " bytes"
	}
	pairs := make([]string, 0, len(decoded))
	for key, value := range decoded {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, value))
	}
	digest := strings.Join(pairs, " ")
	if len(digest) > 120 {
		digest = digest[:120] + "…"
	}
	return digest
}
