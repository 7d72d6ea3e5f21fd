// Package stats serves the HTML pages over recorded game sessions.
package stats

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/udisondev/snakenet/internal/model"
)

// TimeLayout задаёт формат времени на страницах.
const TimeLayout = "2006-01-02 15:04:05"

// InProgress выводится вместо незаполненного времени окончания.
const InProgress = "In Progress"

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"ts":     formatTime,
	"tsOpen": formatOpenTime,
}).ParseFS(templatesFS, "templates/*.html"))

// Reader отдаёт данные для страниц. Реализуется db.GameRepository.
type Reader interface {
	ListGames(ctx context.Context) ([]model.GameRecord, error)
	ListPlayersByGame(ctx context.Context, gameID int64) ([]model.PlayerRecord, error)
	ListGamesByPlayer(ctx context.Context, playerID int) ([]model.PlayerGameRecord, error)
}

// Handler маршрутизирует:
//
//	/                 главная
//	/games            список сессий
//	/games?gid=N      игроки сессии N
//	/players?pid=N    сессии игрока N
//
// Всё остальное, включая нечисловые gid/pid, получает страницу 404.
type Handler struct {
	reader Reader
	mux    *http.ServeMux
}

// NewHandler создаёт Handler поверх reader.
func NewHandler(reader Reader) *Handler {
	h := &Handler{
		reader: reader,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /{$}", h.home)
	h.mux.HandleFunc("GET /games", h.games)
	h.mux.HandleFunc("GET /players", h.player)
	h.mux.HandleFunc("/", h.notFound)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, "home.html", nil)
}

func (h *Handler) games(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("gid") {
		gid, err := strconv.ParseInt(q.Get("gid"), 10, 64)
		if err != nil {
			h.notFound(w, r)
			return
		}
		h.game(w, r, gid)
		return
	}

	games, err := h.reader.ListGames(r.Context())
	if err != nil {
		internalError(w, "listing games", err)
		return
	}
	render(w, http.StatusOK, "games.html", games)
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request, gid int64) {
	players, err := h.reader.ListPlayersByGame(r.Context(), gid)
	if err != nil {
		internalError(w, "listing players of game", err, "game_id", gid)
		return
	}
	render(w, http.StatusOK, "game.html", struct {
		GameID  int64
		Players []model.PlayerRecord
	}{gid, players})
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.URL.Query().Get("pid"))
	if err != nil {
		h.notFound(w, r)
		return
	}

	games, err := h.reader.ListGamesByPlayer(r.Context(), pid)
	if err != nil {
		internalError(w, "listing games of player", err, "player_id", pid)
		return
	}
	render(w, http.StatusOK, "player.html", struct {
		PlayerID int
		Games    []model.PlayerGameRecord
	}{pid, games})
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusNotFound, "404.html", nil)
}

func internalError(w http.ResponseWriter, msg string, err error, args ...any) {
	slog.Error(msg, append(args, "err", err)...)
	render(w, http.StatusInternalServerError, "500.html", nil)
}

// render выполняет шаблон в буфер и только затем пишет статус и тело.
func render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("rendering page", "template", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func formatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

func formatOpenTime(t *time.Time) string {
	if t == nil {
		return InProgress
	}
	return formatTime(*t)
}
