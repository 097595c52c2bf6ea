package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/autom8ter/viewdb"
	"github.com/autom8ter/viewdb/errors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

// ViewsOutput lists the registered views
type ViewsOutput struct {
	Snapshot uint64   `json:"snapshot"`
	Views    []string `json:"views"`
}

// GroupSummary is the name and size of a group
type GroupSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// GroupsOutput lists the groups of a view
type GroupsOutput struct {
	Snapshot uint64         `json:"snapshot"`
	View     string         `json:"view"`
	Count    int            `json:"count"`
	Groups   []GroupSummary `json:"groups"`
}

// GroupOutput is a page of a group's rows
type GroupOutput struct {
	Snapshot uint64         `json:"snapshot"`
	View     string         `json:"view"`
	Group    string         `json:"group"`
	Count    int            `json:"count"`
	RowIDs   []viewdb.RowID `json:"rowIDs"`
	Rows     []*viewdb.Row  `json:"rows,omitempty"`
}

// LocateOutput is the position of a row in a view
type LocateOutput struct {
	Snapshot uint64 `json:"snapshot"`
	Group    string `json:"group"`
	Index    int    `json:"index"`
}

// RowInput is the body of a row write
type RowInput struct {
	Object   *viewdb.Document `json:"object"`
	Metadata *viewdb.Document `json:"metadata,omitempty"`
}

// WriteOutput is the snapshot a write was committed at
type WriteOutput struct {
	Snapshot uint64 `json:"snapshot"`
}

// read runs fn in a read transaction on a connection scoped to the request
func (s *Server) read(ctx context.Context, fn func(ctx context.Context, tx viewdb.ReadTx) error) error {
	conn, err := s.db.Connect()
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Read(ctx, fn)
}

// write runs fn in a write transaction and returns the snapshot it committed
func (s *Server) write(ctx context.Context, fn func(ctx context.Context, tx viewdb.WriteTx) error) (uint64, error) {
	conn, err := s.db.Connect()
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)
	if err := conn.ReadWrite(ctx, fn); err != nil {
		return 0, err
	}
	return conn.Snapshot(), nil
}

func (s *Server) listViewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out ViewsOutput
		if err := s.read(r.Context(), func(ctx context.Context, tx viewdb.ReadTx) error {
			out = ViewsOutput{Snapshot: tx.Snapshot(), Views: tx.Views()}
			return nil
		}); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) listGroupsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["view"]
		var out GroupsOutput
		if err := s.read(r.Context(), func(ctx context.Context, tx viewdb.ReadTx) error {
			view, err := tx.View(name)
			if err != nil {
				return err
			}
			out = GroupsOutput{
				Snapshot: tx.Snapshot(),
				View:     name,
				Count:    view.CountAll(),
				Groups: lo.Map(view.Groups(), func(group string, _ int) GroupSummary {
					return GroupSummary{Name: group, Count: view.Count(group)}
				}),
			}
			return nil
		}); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) getGroupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		query := r.URL.Query()
		order, err := viewdb.ParseOrder(query.Get("order"))
		if err != nil {
			httpError(w, err)
			return
		}
		offset := cast.ToInt(query.Get("offset"))
		limit := cast.ToInt(query.Get("limit"))
		expand := cast.ToBool(query.Get("expand"))
		var out GroupOutput
		if err := s.read(r.Context(), func(ctx context.Context, tx viewdb.ReadTx) error {
			view, err := tx.View(vars["view"])
			if err != nil {
				return err
			}
			out = GroupOutput{
				Snapshot: tx.Snapshot(),
				View:     vars["view"],
				Group:    vars["group"],
				Count:    view.Count(vars["group"]),
				RowIDs:   view.Range(vars["group"], offset, limit, order),
			}
			if !expand {
				return nil
			}
			for _, id := range out.RowIDs {
				row, err := tx.Get(ctx, id.Collection, id.Key)
				if err != nil {
					return err
				}
				out.Rows = append(out.Rows, row)
			}
			return nil
		}); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) locateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id := viewdb.RowID{Collection: vars["collection"], Key: vars["key"]}
		var (
			out   LocateOutput
			found bool
		)
		if err := s.read(r.Context(), func(ctx context.Context, tx viewdb.ReadTx) error {
			view, err := tx.View(vars["view"])
			if err != nil {
				return err
			}
			out.Snapshot = tx.Snapshot()
			out.Group, out.Index, found = view.Locate(id)
			return nil
		}); err != nil {
			httpError(w, err)
			return
		}
		if !found {
			httpError(w, errors.New(errors.NotFound, "view %s does not contain %s", vars["view"], id))
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) getRowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var row *viewdb.Row
		if err := s.read(r.Context(), func(ctx context.Context, tx viewdb.ReadTx) error {
			var err error
			row, err = tx.Get(ctx, vars["collection"], vars["key"])
			return err
		}); err != nil {
			httpError(w, err)
			return
		}
		if row == nil {
			httpError(w, errors.New(errors.NotFound, "row %s/%s does not exist", vars["collection"], vars["key"]))
			return
		}
		writeJSON(w, http.StatusOK, row)
	}
}

func (s *Server) putRowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var input RowInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			httpError(w, errors.Wrap(err, errors.Validation, "failed to decode row"))
			return
		}
		snapshot, err := s.write(r.Context(), func(ctx context.Context, tx viewdb.WriteTx) error {
			return tx.Set(ctx, vars["collection"], vars["key"], input.Object, input.Metadata)
		})
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, WriteOutput{Snapshot: snapshot})
	}
}

func (s *Server) deleteRowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		snapshot, err := s.write(r.Context(), func(ctx context.Context, tx viewdb.WriteTx) error {
			return tx.Delete(ctx, vars["collection"], vars["key"])
		})
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, WriteOutput{Snapshot: snapshot})
	}
}

// changesHandler streams every published changeset to a websocket client until it disconnects
func (s *Server) changesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.db.Logger().Warn(r.Context(), "failed to upgrade changes request", map[string]any{
				"error": err.Error(),
			})
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		egp, ctx := errgroup.WithContext(ctx)
		egp.Go(func() error {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return nil
				}
			}
		})
		egp.Go(func() error {
			defer conn.Close()
			err := s.db.ChangeStream(ctx, func(ctx context.Context, changes *viewdb.Changeset) (bool, error) {
				if err := conn.WriteJSON(changes); err != nil {
					return false, nil
				}
				return true, nil
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
		if err := egp.Wait(); err != nil && !errors.HasCode(err, errors.Forbidden) {
			s.db.Logger().Error(r.Context(), "change stream failed", err, map[string]any{})
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}
