package mailer

import "html/template"

const layoutHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: #1E5AA8; color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
.content { background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px; }
.box { background: white; padding: 20px; border-radius: 5px; margin: 20px 0; }
.total { font-size: 24px; font-weight: bold; color: #1E5AA8; }
.code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; color: #1E5AA8; }
.button { display: inline-block; padding: 12px 30px; background: #1E5AA8; color: white; text-decoration: none; border-radius: 5px; }
.footer { text-align: center; margin-top: 20px; color: #666; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
`

const layoutFoot = `<div class="footer">
<p>Este é um e-mail automático, por favor não responda.</p>
<p>&copy; {{.Year}} E-Confere. Todos os direitos reservados.</p>
</div>
</div>
</body>
</html>`

var receiptTmpl = template.Must(template.New("receipt").Parse(layoutHead + `
<div class="header"><h1>E-Confere</h1><p>Recibo de Pagamento</p></div>
<div class="content">
<p>Olá {{.Name}},</p>
<p>Seu pagamento foi processado com sucesso!</p>
<div class="box">
<h2>Detalhes do Pagamento</h2>
<p>ID do Pagamento: {{.PaymentID}}</p>
<p>Data: {{.Date}}</p>
<p>Método de Pagamento: {{.Method}}</p>
<p>Valor: <span class="total">{{.Amount}}</span></p>
</div>
<p>Obrigado por usar nossos serviços!</p>
</div>
` + layoutFoot))

var resetTmpl = template.Must(template.New("password_reset").Parse(layoutHead + `
<div class="header"><h1>E-Confere</h1><p>Recuperação de Senha</p></div>
<div class="content">
<p>Olá {{.Name}},</p>
<p>Você solicitou a recuperação de senha. Use o código abaixo para redefinir sua senha:</p>
<div class="box"><p class="code">{{.Code}}</p></div>
<p>Se você não solicitou esta recuperação, ignore este e-mail.</p>
<p>Este código expira em 1 hora.</p>
</div>
` + layoutFoot))

var verifyTmpl = template.Must(template.New("verification").Parse(layoutHead + `
<div class="header"><h1>E-Confere</h1><p>Confirmação de E-mail</p></div>
<div class="content">
<p>Olá {{.Name}},</p>
<p>Clique no botão abaixo para confirmar seu e-mail:</p>
<div style="text-align: center;"><a href="{{.Link}}" class="button">Confirmar E-mail</a></div>
<p>Este link expira em 24 horas.</p>
</div>
` + layoutFoot))
