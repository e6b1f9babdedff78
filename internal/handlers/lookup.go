package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/transport"
)

func (d *Deps) weather(ctx context.Context, req *dispatch.Request) error {
	if d.Cfg.WeatherAPIKey == "" {
		return req.Reply(ctx, "Weather lookups are not configured")
	}
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sweather <city>", d.Cfg.Prefix))
	}
	city := strings.Join(req.Args, " ")

	var out struct {
		Name string `json:"name"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	endpoint := "https://api.openweathermap.org/data/2.5/weather?units=metric&q=" +
		url.QueryEscape(city) + "&appid=" + url.QueryEscape(d.Cfg.WeatherAPIKey)
	if err := getJSON(ctx, endpoint, &out); err != nil {
		return err
	}
	description := ""
	if len(out.Weather) > 0 {
		description = out.Weather[0].Description
	}
	return req.Reply(ctx, fmt.Sprintf(
		"🌦 *%s*\n\n%s\n🌡 %.1f°C\n💧 %d%% humidity\n💨 %.1f m/s wind",
		out.Name, description, out.Main.Temp, out.Main.Humidity, out.Wind.Speed))
}

func (d *Deps) quote(ctx context.Context, req *dispatch.Request) error {
	var out struct {
		Content string `json:"content"`
		Author  string `json:"author"`
	}
	if err := getJSON(ctx, "https://api.quotable.io/random", &out); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("💬 %q\n\n— %s", out.Content, out.Author))
}

func (d *Deps) meme(ctx context.Context, req *dispatch.Request) error {
	var out struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := getJSON(ctx, "https://meme-api.com/gimme", &out); err != nil {
		return err
	}
	return req.Conn.SendMessage(ctx, req.ConversationID,
		transport.Content{ImageURL: out.URL, Caption: out.Title},
		&transport.SendOptions{Quoted: req.Quoted})
}

func (d *Deps) news(ctx context.Context, req *dispatch.Request) error {
	if d.Cfg.NewsAPIKey == "" {
		return req.Reply(ctx, "News lookups are not configured")
	}
	var out struct {
		Articles []struct {
			Title  string `json:"title"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			URL string `json:"url"`
		} `json:"articles"`
	}
	endpoint := "https://newsapi.org/v2/top-headlines?pageSize=5&country=us&apiKey=" +
		url.QueryEscape(d.Cfg.NewsAPIKey)
	if err := getJSON(ctx, endpoint, &out); err != nil {
		return err
	}
	if len(out.Articles) == 0 {
		return req.Reply(ctx, "No headlines right now")
	}
	var b strings.Builder
	b.WriteString("📰 *Top headlines*\n")
	for i, a := range out.Articles {
		fmt.Fprintf(&b, "\n%d. %s (%s)\n%s\n", i+1, a.Title, a.Source.Name, a.URL)
	}
	return req.Reply(ctx, b.String())
}

func (d *Deps) define(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sdefine <word>", d.Cfg.Prefix))
	}
	word := req.Args[0]

	var out []struct {
		Word     string `json:"word"`
		Meanings []struct {
			PartOfSpeech string `json:"partOfSpeech"`
			Definitions  []struct {
				Definition string `json:"definition"`
				Example    string `json:"example"`
			} `json:"definitions"`
		} `json:"meanings"`
	}
	endpoint := "https://api.dictionaryapi.dev/api/v2/entries/en/" + url.PathEscape(word)
	if err := getJSON(ctx, endpoint, &out); err != nil {
		return err
	}
	if len(out) == 0 || len(out[0].Meanings) == 0 || len(out[0].Meanings[0].Definitions) == 0 {
		return req.Reply(ctx, fmt.Sprintf("No definition found for %q", word))
	}
	meaning := out[0].Meanings[0]
	def := meaning.Definitions[0]
	text := fmt.Sprintf("📖 *%s* (%s)\n\n%s", out[0].Word, meaning.PartOfSpeech, def.Definition)
	if def.Example != "" {
		text += fmt.Sprintf("\n\n_%s_", def.Example)
	}
	return req.Reply(ctx, text)
}

func (d *Deps) translate(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) < 2 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %stranslate <lang> <text>", d.Cfg.Prefix))
	}
	target := req.Args[0]
	text := strings.Join(req.Args[1:], " ")

	var out struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
	}
	endpoint := "https://api.mymemory.translated.net/get?q=" + url.QueryEscape(text) +
		"&langpair=" + url.QueryEscape("en|"+target)
	if err := getJSON(ctx, endpoint, &out); err != nil {
		return err
	}
	if out.ResponseData.TranslatedText == "" {
		return req.Reply(ctx, "Translation failed")
	}
	return req.Reply(ctx, "🌐 "+out.ResponseData.TranslatedText)
}

func (d *Deps) shortURL(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sshorturl <url>", d.Cfg.Prefix))
	}
	short, err := getText(ctx, "https://tinyurl.com/api-create.php?url="+url.QueryEscape(req.Args[0]))
	if err != nil {
		return err
	}
	return req.Reply(ctx, "🔗 "+short)
}

func (d *Deps) calc(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %scalc <expression>", d.Cfg.Prefix))
	}
	expr := strings.Join(req.Args, " ")
	result, err := Eval(expr)
	if err != nil {
		return req.Reply(ctx, "Invalid expression: "+err.Error())
	}
	return req.Reply(ctx, fmt.Sprintf("🧮 %s = %s", expr, formatNumber(result)))
}
