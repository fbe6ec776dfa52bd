package main

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>Room Relay</title>
<style>
body{font-family:system-ui,-apple-system,sans-serif;background:#191919;color:#e5e5e5;max-width:560px;margin:48px auto;padding:0 24px;line-height:1.5}
code{background:#242424;border:1px solid #333;border-radius:4px;padding:1px 5px}
h1{font-size:20px;font-weight:600}
li{margin:6px 0}
</style>
</head>
<body>
<h1>Room Relay</h1>
<p>Connect a WebSocket to join a room. Every JSON message you send is relayed to the other members of the same room.</p>
<ul>
<li><code>/room/{roomId}</code> or <code>/?room={roomId}</code> &mdash; join a room (letters, digits, <code>_</code> and <code>-</code>)</li>
<li><code>/health</code> &mdash; liveness</li>
<li><code>/stats</code> &mdash; rooms, connections and counters</li>
<li><code>/metrics</code> &mdash; Prometheus metrics</li>
</ul>
</body>
</html>
`
