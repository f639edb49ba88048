package api

import (
	"net/http"
)

func (s *Server) handleKioskPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(kioskPageHTML))
}

const kioskPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Live Image Cartoonizer</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: #0a0a0a;
    color: #e0e0e0;
    display: flex;
    justify-content: center;
    min-height: 100vh;
    padding: 32px 16px;
  }
  .card {
    background: #1a1a1a;
    border: 1px solid #333;
    border-radius: 16px;
    padding: 32px;
    text-align: center;
    max-width: 720px;
    width: 100%;
  }
  h1 { font-size: 22px; font-weight: 600; margin-bottom: 24px; }
  video, #snapshot, #result {
    width: 100%;
    max-width: 512px;
    border-radius: 12px;
    background: #000;
  }
  #snapshot, #result-block, #spinner { display: none; }
  .buttons { margin: 16px 0; }
  button {
    background: #4f46e5;
    color: #fff;
    border: 0;
    border-radius: 8px;
    padding: 12px 24px;
    font-size: 16px;
    margin: 0 6px;
    cursor: pointer;
  }
  button:disabled { background: #444; cursor: default; }
  #status { font-size: 14px; color: #888; margin-top: 8px; min-height: 20px; }
  .error { color: #f87171 !important; }
  .success { color: #4ade80 !important; }
  #qr { width: 220px; height: 220px; background: #fff; border-radius: 12px; margin-top: 16px; }
  #link { display: block; color: #93c5fd; margin-top: 8px; word-break: break-all; }
  #spinner {
    width: 36px; height: 36px; margin: 16px auto;
    border: 4px solid #333; border-top-color: #4f46e5; border-radius: 50%;
    animation: spin 1s linear infinite;
  }
  @keyframes spin { to { transform: rotate(360deg); } }
</style>
</head>
<body>
<div class="card">
  <h1>Live Image Cartoonizer</h1>
  <video id="camera" autoplay playsinline muted></video>
  <canvas id="snapshot"></canvas>
  <div class="buttons">
    <button id="capture">Take a photo</button>
    <button id="retake" disabled>Retake</button>
    <button id="cartoonize" disabled>Cartoonize</button>
  </div>
  <div id="spinner"></div>
  <div id="status"></div>
  <div id="result-block">
    <img id="result" alt="Cartoonized image with text">
    <div id="qr-block">
      <img id="qr" alt="Scan to download">
      <a id="link" target="_blank" rel="noopener"></a>
    </div>
  </div>
</div>
<script>
(function() {
  var video = document.getElementById('camera');
  var canvas = document.getElementById('snapshot');
  var captureBtn = document.getElementById('capture');
  var retakeBtn = document.getElementById('retake');
  var cartoonizeBtn = document.getElementById('cartoonize');
  var spinner = document.getElementById('spinner');
  var statusEl = document.getElementById('status');
  var resultBlock = document.getElementById('result-block');
  var resultImg = document.getElementById('result');
  var qrBlock = document.getElementById('qr-block');
  var qrImg = document.getElementById('qr');
  var linkEl = document.getElementById('link');
  var captured = null;

  function setStatus(text, cls) {
    statusEl.textContent = text;
    statusEl.className = cls || '';
  }

  function showCamera() {
    captured = null;
    canvas.style.display = 'none';
    video.style.display = 'inline-block';
    captureBtn.disabled = false;
    retakeBtn.disabled = true;
    cartoonizeBtn.disabled = true;
  }

  navigator.mediaDevices.getUserMedia({ video: true, audio: false })
    .then(function(stream) { video.srcObject = stream; })
    .catch(function() { setStatus('Camera not available', 'error'); });

  captureBtn.addEventListener('click', function() {
    canvas.width = video.videoWidth;
    canvas.height = video.videoHeight;
    canvas.getContext('2d').drawImage(video, 0, 0);
    canvas.toBlob(function(blob) {
      captured = blob;
      video.style.display = 'none';
      canvas.style.display = 'inline-block';
      captureBtn.disabled = true;
      retakeBtn.disabled = false;
      cartoonizeBtn.disabled = false;
      setStatus('Photo taken. Press Cartoonize.');
    }, 'image/png');
  });

  retakeBtn.addEventListener('click', function() {
    resultBlock.style.display = 'none';
    setStatus('');
    showCamera();
  });

  cartoonizeBtn.addEventListener('click', function() {
    if (!captured) return;
    var form = new FormData();
    form.append('photo', captured, 'photo.png');

    cartoonizeBtn.disabled = true;
    retakeBtn.disabled = true;
    resultBlock.style.display = 'none';
    spinner.style.display = 'block';
    setStatus('Processing...');

    fetch('/cartoonize', { method: 'POST', body: form })
      .then(function(r) { return r.json(); })
      .then(function(data) {
        if (data.image_png) {
          resultImg.setAttribute('src', 'data:image/png;base64,' + data.image_png);
          resultBlock.style.display = 'block';
        }
        if (data.qr_png && data.url) {
          qrImg.setAttribute('src', 'data:image/png;base64,' + data.qr_png);
          linkEl.setAttribute('href', data.url);
          linkEl.textContent = data.url;
          qrBlock.style.display = 'block';
        } else {
          qrBlock.style.display = 'none';
        }
        if (data.error) {
          setStatus(data.error, 'error');
        } else {
          setStatus('Done! Scan the QR code or click the link to download your image.', 'success');
        }
      })
      .catch(function() {
        setStatus('Connection error, please try again.', 'error');
      })
      .then(function() {
        spinner.style.display = 'none';
        retakeBtn.disabled = false;
        cartoonizeBtn.disabled = false;
      });
  });

  showCamera();
})();
</script>
</body>
</html>`
