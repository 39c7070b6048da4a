package cnapi

import (
	"bytes"
	"html/template"
	"net/http"

	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

type indexPage struct {
	Dates  []domain.TradingDate
	Latest domain.TradingDate
	Mode   limitup.StreakMode
	Error  string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{Mode: s.analyzer.Mode()}
	status := http.StatusOK
	dates, err := s.analyzer.Dates(r.Context())
	if err != nil {
		s.log.Error("listing trading dates for page", "error", err)
		page.Error = "无法获取交易日历: " + err.Error()
		status = statusFor(err)
	} else if len(dates) > 0 {
		// Newest first in the selector.
		page.Dates = make([]domain.TradingDate, len(dates))
		for i, d := range dates {
			page.Dates[len(dates)-1-i] = d
		}
		page.Latest = dates[len(dates)-1]
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, page); err != nil {
		s.log.Error("rendering index page", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>涨停板连板统计</title>
<style>
body { font-family: -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; margin: 2rem auto; max-width: 880px; color: #222; }
h1 { font-size: 1.5rem; }
.controls { display: flex; gap: .75rem; align-items: center; margin-bottom: 1rem; }
.error { color: #b00020; }
.muted { color: #777; font-size: .9rem; }
table { border-collapse: collapse; min-width: 240px; }
th, td { border-bottom: 1px solid #ddd; padding: .4rem .8rem; text-align: left; }
td.num { text-align: right; }
.chart { margin-top: 1.5rem; }
.bar-row { display: flex; align-items: center; gap: .5rem; margin: .3rem 0; }
.bar-label { width: 4rem; }
.bar { background: #e4393c; height: 1.2rem; }
progress { width: 240px; }
#exports a { margin-right: 1rem; }
</style>
</head>
<body>
<h1>涨停板连板统计</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<div class="controls">
  <label for="date">选择日期</label>
  <select id="date">
  {{range .Dates}}<option value="{{.}}"{{if eq . $.Latest}} selected{{end}}>{{.}}</option>
  {{end}}</select>
  <button id="run"{{if not .Dates}} disabled{{end}}>开始分析</button>
  <span class="muted">计数模式: {{.Mode}}</span>
</div>
<div id="busy" hidden>正在获取数据并分析... <progress id="progress" value="0" max="1"></progress> <span id="progress-text"></span></div>
<p id="message" class="error"></p>
<div id="result" hidden>
  <p id="summary" class="muted"></p>
  <table>
    <thead><tr><th>类别</th><th>数量</th></tr></thead>
    <tbody id="rows"></tbody>
  </table>
  <div id="chart" class="chart"></div>
  <p id="exports"><a id="csv" href="#">下载 CSV</a><a id="xlsx" href="#">下载 Excel</a></p>
</div>
<script>
const $ = (id) => document.getElementById(id);

function render(res) {
  $("rows").innerHTML = "";
  $("chart").innerHTML = "";
  const max = Math.max(1, ...res.rows.map(r => r.count));
  for (const row of res.rows) {
    const tr = document.createElement("tr");
    tr.innerHTML = "<td></td><td class=\"num\"></td>";
    tr.children[0].textContent = row.category;
    tr.children[1].textContent = row.count;
    $("rows").appendChild(tr);

    const bar = document.createElement("div");
    bar.className = "bar-row";
    bar.innerHTML = "<span class=\"bar-label\"></span><div class=\"bar\"></div><span></span>";
    bar.children[0].textContent = row.category;
    bar.children[1].style.width = (row.count / max * 480) + "px";
    bar.children[2].textContent = row.count;
    $("chart").appendChild(bar);
  }
  const skipped = res.skipped.length ? "，跳过 " + res.skipped.length : "";
  $("summary").textContent = res.date + " 涨停 " + res.qualifying + " 只，已分类 " + res.classified + skipped + "，耗时 " + (res.elapsedMs / 1000).toFixed(1) + "s";
  const q = "?date=" + encodeURIComponent(res.date) + "&run=" + encodeURIComponent(res.runId);
  $("csv").href = "/api/cn/limitup/export.csv" + q;
  $("xlsx").href = "/api/cn/limitup/export.xlsx" + q;
  $("result").hidden = false;
}

$("run").addEventListener("click", () => {
  const date = $("date").value;
  $("run").disabled = true;
  $("busy").hidden = false;
  $("message").textContent = "";
  $("progress").value = 0;
  $("progress-text").textContent = "";
  const proto = location.protocol === "https:" ? "wss://" : "ws://";
  const ws = new WebSocket(proto + location.host + "/ws/cn/limitup?date=" + encodeURIComponent(date));
  let finished = false;
  ws.onmessage = (msg) => {
    const ev = JSON.parse(msg.data);
    if (ev.type === "progress") {
      $("progress").max = ev.total;
      $("progress").value = ev.done;
      $("progress-text").textContent = ev.done + "/" + ev.total + " " + (ev.symbol || "");
    } else if (ev.type === "result") {
      finished = true;
      render(ev.result);
    } else if (ev.type === "error") {
      finished = true;
      $("message").textContent = ev.error;
    }
  };
  ws.onclose = () => {
    if (!finished) $("message").textContent = "连接已断开";
    $("busy").hidden = true;
    $("run").disabled = false;
  };
});
</script>
</body>
</html>
`))
