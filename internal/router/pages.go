package router

// Fixed bodies.  Tests compare against these byte-for-byte.
const (
	NotFoundBody      = "404 Not Found"
	InternalErrorBody = "500 Internal Server Error"
)

// IndexHTML is the document served for GET /.
const IndexHTML = `
<!doctype html>
<html>
    <head>
        <title>Go Microservice with Handlers</title>
    </head>
    <body>
        <h3>Go Microservice with Handlers</h3>
        <p>This microservice demonstrates:</p>
        <ul>
            <li><strong>net</strong> - one goroutine per accepted connection</li>
            <li><strong>golang.org/x/net/http2</strong> - cleartext HTTP/2 next to HTTP/1.x on one port</li>
            <li><strong>Route handling</strong> - different responses for different paths</li>
        </ul>
        <p>Try visiting <code>/</code> for this page or any other path for a 404 response.</p>
    </body>
</html>
`
